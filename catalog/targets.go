package catalog

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/habforecast/eo-fetcher/common"
)

// Inventory lists the targets of a batch.
// Targets is lazy and can be ranged over several times, yielding the same sequence.
type Inventory interface {
	Dataset() common.Dataset
	Validate() error
	Targets() iter.Seq[common.Target]
}

var codeRe = regexp.MustCompile("^[A-Z0-9]+$")

func validateCodes(satellite, region string) error {
	if !codeRe.MatchString(satellite) {
		return fmt.Errorf("invalid satellite code %q (must be upper case letters and digits)", satellite)
	}
	if !codeRe.MatchString(region) {
		return fmt.Errorf("invalid region code %q (must be upper case letters and digits)", region)
	}
	return nil
}

func joinURL(baseURL, filename string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + filename
}

func newTarget(dataset common.Dataset, baseURL string, info map[string]string, date time.Time) (common.Target, error) {
	p, err := dataset.ProductPath(info)
	if err != nil {
		return common.Target{}, err
	}
	return common.Target{
		Dataset: dataset,
		URL:     joinURL(baseURL, path.Base(p)),
		Path:    p,
		Date:    date,
	}, nil
}

// MonthlyInventory lists the monthly composites of a satellite over a region
type MonthlyInventory struct {
	BaseURL   string
	Years     []int
	Satellite string
	Region    string
	Months    MonthRange
}

// Dataset implements Inventory
func (inv MonthlyInventory) Dataset() common.Dataset { return common.DatasetMonthly }

// Validate implements Inventory
func (inv MonthlyInventory) Validate() error {
	if len(inv.Years) == 0 {
		return fmt.Errorf("MonthlyInventory: no year")
	}
	if inv.Months.First < time.January || inv.Months.Last > time.December || inv.Months.Last < inv.Months.First {
		return fmt.Errorf("MonthlyInventory: invalid month range %d-%d", inv.Months.First, inv.Months.Last)
	}
	if err := validateCodes(inv.Satellite, inv.Region); err != nil {
		return fmt.Errorf("MonthlyInventory: %w", err)
	}
	return nil
}

// Targets implements Inventory
func (inv MonthlyInventory) Targets() iter.Seq[common.Target] {
	return func(yield func(common.Target) bool) {
		for _, year := range inv.Years {
			for m := inv.Months.First; m <= inv.Months.Last; m++ {
				begin := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
				end := time.Date(year, m, LastDayOfMonth(year, m), 0, 0, 0, 0, time.UTC)
				t, err := newTarget(common.DatasetMonthly, inv.BaseURL, map[string]string{
					"SAT":    inv.Satellite,
					"REGION": inv.Region,
					"YEAR":   strconv.Itoa(year),
					"BEGIN":  begin.Format(common.DateFormat),
					"END":    end.Format(common.DateFormat),
				}, begin)
				if err != nil {
					// keys are checked by Validate
					return
				}
				if !yield(t) {
					return
				}
			}
		}
	}
}

// DailyInventory lists the daily composites of a satellite over a region
type DailyInventory struct {
	BaseURL   string
	Years     []int
	Satellite string
	Region    string
	Dates     DateRange
}

// Dataset implements Inventory
func (inv DailyInventory) Dataset() common.Dataset { return common.DatasetDaily }

// Validate implements Inventory
func (inv DailyInventory) Validate() error {
	if len(inv.Years) == 0 {
		return fmt.Errorf("DailyInventory: no year")
	}
	if err := validateCodes(inv.Satellite, inv.Region); err != nil {
		return fmt.Errorf("DailyInventory: %w", err)
	}
	return nil
}

// Targets implements Inventory
func (inv DailyInventory) Targets() iter.Seq[common.Target] {
	return func(yield func(common.Target) bool) {
		for _, year := range inv.Years {
			for day := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC); day.Year() == year; day = day.AddDate(0, 0, 1) {
				if !inv.Dates.Contains(day) {
					continue
				}
				t, err := newTarget(common.DatasetDaily, inv.BaseURL, map[string]string{
					"SAT":    inv.Satellite,
					"REGION": inv.Region,
					"YEAR":   strconv.Itoa(year),
					"DATE":   day.Format(common.DateFormat),
				}, day)
				if err != nil {
					return
				}
				if !yield(t) {
					return
				}
			}
		}
	}
}

// DaymetInventory is the static list of the yearly Daymet files of some variables
type DaymetInventory struct {
	BaseURL   string
	Years     []int
	Variables []string
}

// Dataset implements Inventory
func (inv DaymetInventory) Dataset() common.Dataset { return common.DatasetDaymet }

// Validate implements Inventory
func (inv DaymetInventory) Validate() error {
	if len(inv.Years) == 0 {
		return fmt.Errorf("DaymetInventory: no year")
	}
	known := map[string]bool{}
	for _, v := range common.DaymetVariables {
		known[v] = true
	}
	for _, v := range inv.Variables {
		if !known[v] {
			return fmt.Errorf("DaymetInventory: unknown variable %q (must be one of %s)", v, strings.Join(common.DaymetVariables, ", "))
		}
	}
	return nil
}

// Targets implements Inventory
func (inv DaymetInventory) Targets() iter.Seq[common.Target] {
	variables := inv.Variables
	if len(variables) == 0 {
		variables = common.DaymetVariables
	}
	return func(yield func(common.Target) bool) {
		for _, year := range inv.Years {
			for _, v := range variables {
				t, err := newTarget(common.DatasetDaymet, inv.BaseURL, map[string]string{
					"VAR":  v,
					"YEAR": strconv.Itoa(year),
				}, time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))
				if err != nil {
					return
				}
				if !yield(t) {
					return
				}
			}
		}
	}
}

// URLListInventory is a static list of urls, stored under their own filename
type URLListInventory struct {
	URLs []string
}

// Dataset implements Inventory
func (inv URLListInventory) Dataset() common.Dataset { return common.DatasetDaymet }

// Validate implements Inventory
func (inv URLListInventory) Validate() error {
	if len(inv.URLs) == 0 {
		return fmt.Errorf("URLListInventory: empty list")
	}
	for _, u := range inv.URLs {
		if _, err := FilenameFromURL(u); err != nil {
			return fmt.Errorf("URLListInventory: %w", err)
		}
	}
	return nil
}

// Targets implements Inventory
func (inv URLListInventory) Targets() iter.Seq[common.Target] {
	return func(yield func(common.Target) bool) {
		for _, u := range inv.URLs {
			filename, err := FilenameFromURL(u)
			if err != nil {
				return
			}
			t := common.Target{Dataset: common.DatasetDaymet, URL: u, Path: filename}
			if info, err := common.ParseProductName(filename); err == nil {
				t.Date = info.Begin
			}
			if !yield(t) {
				return
			}
		}
	}
}

// FilenameFromURL returns the last segment of the url path, without the query string
func FilenameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("FilenameFromURL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("FilenameFromURL: unsupported scheme in %s", rawURL)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("FilenameFromURL: no filename in %s", rawURL)
	}
	return name, nil
}

// ReadURLList reads one url per line, ignoring blank lines and # comments
func ReadURLList(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ReadURLList: %w", err)
	}
	return urls, nil
}
