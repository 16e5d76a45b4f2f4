package common

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

//go:generate go run github.com/dmarkham/enumer -json -type Dataset -trimprefix Dataset -transform lower

// Dataset defines the family of products fetched by a batch
type Dataset int

const (
	DatasetUnknown Dataset = iota
	DatasetDaymet          // daymet_v4_daily_na_{VAR}_{YEAR}.nc
	DatasetMonthly         // {SAT}_OLCI_EFRNT.{BEGIN}_{END}.L3m.MO.ILW_{REGION}.V5.all.{REGION}.300m.nc
	DatasetDaily           // {SAT}_OLCI_EFRNT.{DATE}.L3m.DAY.ILW_{REGION}.V5.all.{REGION}.300m.nc
)

// Filename and directory templates (see FormatBrackets)
const (
	DaymetFileTemplate  = "daymet_v4_daily_na_{VAR}_{YEAR}.nc"
	MonthlyFileTemplate = "{SAT}_OLCI_EFRNT.{BEGIN}_{END}.L3m.MO.ILW_{REGION}.V5.all.{REGION}.300m.nc"
	DailyFileTemplate   = "{SAT}_OLCI_EFRNT.{DATE}.L3m.DAY.ILW_{REGION}.V5.all.{REGION}.300m.nc"

	MonthlyDirTemplate = "{SAT}/{YEAR}/{REGION}_MO"
	DailyDirTemplate   = "{SAT}/{YEAR}/{REGION}_DAY"
)

// DateFormat is the layout of the dates in the product names
const DateFormat = "20060102"

// Default values of the command line
const (
	DefaultMonthlySatellite = "S3B"
	DefaultDailySatellite   = "S3M" // merged S3A/S3B
	DefaultRegion           = "CONUS"
)

// DaymetVariables are the daily variables published by Daymet V4
var DaymetVariables = []string{"tmin", "tmax", "prcp", "srad", "vp", "dayl", "swe"}

// FileTemplate returns the filename and directory templates of the dataset
func (d Dataset) FileTemplate() (file, dir string) {
	switch d {
	case DatasetDaymet:
		return DaymetFileTemplate, ""
	case DatasetMonthly:
		return MonthlyFileTemplate, MonthlyDirTemplate
	case DatasetDaily:
		return DailyFileTemplate, DailyDirTemplate
	}
	return "", ""
}

// ProductPath returns the relative path (directory and filename) of the product described by info
func (d Dataset) ProductPath(info map[string]string) (string, error) {
	file, dir := d.FileTemplate()
	if file == "" {
		return "", fmt.Errorf("ProductPath: dataset %s not supported", d)
	}
	name := FormatBrackets(file, info)
	if strings.ContainsAny(name, "{}") {
		return "", fmt.Errorf("ProductPath: missing keys to format %s", name)
	}
	return path.Join(FormatBrackets(dir, info), name), nil
}

var (
	monthlyRe = regexp.MustCompile(`^([A-Z0-9]+)_OLCI_EFRNT\.(\d{8})_(\d{8})\.L3m\.MO\.ILW_([A-Z0-9]+)\.`)
	dailyRe   = regexp.MustCompile(`^([A-Z0-9]+)_OLCI_EFRNT\.(\d{8})\.L3m\.DAY\.ILW_([A-Z0-9]+)\.`)
	daymetRe  = regexp.MustCompile(`^daymet_v4_daily_na_([a-z]+)_(\d{4})\.nc$`)
)

// ProductInfo is what can be recovered from a product name
type ProductInfo struct {
	Dataset   Dataset
	Satellite string
	Region    string
	Variable  string
	Begin     time.Time
	End       time.Time
}

// TimeLabel returns the representative date of the product:
// the middle of the period for monthly products, the day for daily ones
// and the first of January for the yearly Daymet files.
func (p ProductInfo) TimeLabel() time.Time {
	return p.Begin.Add(p.End.Sub(p.Begin) / 2)
}

// ParseProductName is the inverse of the file templates
func ParseProductName(name string) (ProductInfo, error) {
	name = path.Base(name)
	if m := monthlyRe.FindStringSubmatch(name); m != nil {
		begin, err := time.Parse(DateFormat, m[2])
		if err != nil {
			return ProductInfo{}, fmt.Errorf("ParseProductName[%s]: %w", name, err)
		}
		end, err := time.Parse(DateFormat, m[3])
		if err != nil {
			return ProductInfo{}, fmt.Errorf("ParseProductName[%s]: %w", name, err)
		}
		if end.Before(begin) {
			return ProductInfo{}, fmt.Errorf("ParseProductName[%s]: end before begin", name)
		}
		return ProductInfo{Dataset: DatasetMonthly, Satellite: m[1], Region: m[4], Begin: begin, End: end}, nil
	}
	if m := dailyRe.FindStringSubmatch(name); m != nil {
		date, err := time.Parse(DateFormat, m[2])
		if err != nil {
			return ProductInfo{}, fmt.Errorf("ParseProductName[%s]: %w", name, err)
		}
		return ProductInfo{Dataset: DatasetDaily, Satellite: m[1], Region: m[3], Begin: date, End: date}, nil
	}
	if m := daymetRe.FindStringSubmatch(name); m != nil {
		year, err := time.Parse("2006", m[2])
		if err != nil {
			return ProductInfo{}, fmt.Errorf("ParseProductName[%s]: %w", name, err)
		}
		return ProductInfo{Dataset: DatasetDaymet, Variable: m[1], Begin: year, End: year}, nil
	}
	return ProductInfo{}, fmt.Errorf("ParseProductName: unrecognized product name: %s", name)
}

/**
 * FormatBrackets replaces in <str> all {keys} of <info> by the corresponding value
 * keys are the ones used by the templates: SAT, REGION, YEAR, BEGIN, END, DATE, VAR
 */
func FormatBrackets(str string, infos ...map[string]string) string {
	for _, info := range infos {
		for k, v := range info {
			str = strings.ReplaceAll(str, "{"+k+"}", v)
		}
	}
	return str
}
