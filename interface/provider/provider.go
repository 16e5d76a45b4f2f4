package provider

import (
	"context"
	"time"
)

// Base urls of the archives
const (
	// DaymetBaseURL serves the Daymet V4 R1 daily files (ORNL DAAC, dataset 2129)
	DaymetBaseURL = "https://thredds.daac.ornl.gov/thredds/fileServer/ornldaac/2129/"
	// OceanColorBaseURL serves the Ocean Color level-3 products
	OceanColorBaseURL = "https://oceandata.sci.gsfc.nasa.gov/getfile/"
)

// Provider is the interface of a file download service
type Provider interface {
	// Download url to localFile.
	// If resume is true, the transfer starts at the end of localFile (the remote must support byte ranges)
	// and expectedSize (if > 0) is checked.
	Download(ctx context.Context, url, localFile string, resume bool, expectedSize int64) (Transfer, error)

	// Name of the provider
	Name() string
}

// Transfer describes a successful download
type Transfer struct {
	URL      string
	File     string
	Resumed  bool
	Size     int64 // size of the local file
	Bytes    int64 // bytes transferred
	Duration time.Duration
}
