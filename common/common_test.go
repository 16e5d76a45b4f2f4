package common

import (
	"testing"
	"time"
)

func checkValue(t *testing.T, key, value, expected string) {
	if value != expected {
		t.Errorf("expected %s for key %s, got %s", expected, key, value)
	}
}

func TestProductPath(t *testing.T) {
	p, err := DatasetMonthly.ProductPath(map[string]string{
		"SAT": "S3B", "REGION": "CONUS", "YEAR": "2024", "BEGIN": "20240201", "END": "20240229",
	})
	if err != nil {
		t.Fatal(err)
	}
	checkValue(t, "monthly", p, "S3B/2024/CONUS_MO/S3B_OLCI_EFRNT.20240201_20240229.L3m.MO.ILW_CONUS.V5.all.CONUS.300m.nc")

	p, err = DatasetDaily.ProductPath(map[string]string{
		"SAT": "S3M", "REGION": "CONUS", "YEAR": "2024", "DATE": "20240704",
	})
	if err != nil {
		t.Fatal(err)
	}
	checkValue(t, "daily", p, "S3M/2024/CONUS_DAY/S3M_OLCI_EFRNT.20240704.L3m.DAY.ILW_CONUS.V5.all.CONUS.300m.nc")

	p, err = DatasetDaymet.ProductPath(map[string]string{"VAR": "tmin", "YEAR": "2024"})
	if err != nil {
		t.Fatal(err)
	}
	checkValue(t, "daymet", p, "daymet_v4_daily_na_tmin_2024.nc")

	if _, err := DatasetMonthly.ProductPath(map[string]string{"SAT": "S3B"}); err == nil {
		t.Error("missing keys must fail")
	}
	if _, err := DatasetUnknown.ProductPath(nil); err == nil {
		t.Error("unknown dataset must fail")
	}
}

func TestParseProductName(t *testing.T) {
	if _, err := ParseProductName("S3B_OLCI_EFRNT.2024_2024.L3m.MO.nc"); err == nil {
		t.Errorf("malformed name must fail")
	}

	info, err := ParseProductName("S3B/2024/CONUS_MO/S3B_OLCI_EFRNT.20240201_20240229.L3m.MO.ILW_CONUS.V5.all.CONUS.300m.nc")
	if err != nil {
		t.Fatal(err)
	}
	if info.Dataset != DatasetMonthly {
		t.Errorf("expected monthly, got %s", info.Dataset)
	}
	checkValue(t, "SAT", info.Satellite, "S3B")
	checkValue(t, "REGION", info.Region, "CONUS")
	checkValue(t, "BEGIN", info.Begin.Format(DateFormat), "20240201")
	checkValue(t, "END", info.End.Format(DateFormat), "20240229")
	if label := info.TimeLabel(); !label.Equal(time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected time label %v", label)
	}

	info, err = ParseProductName("S3M_OLCI_EFRNT.20240704.L3m.DAY.ILW_CONUS.V5.all.CONUS.300m.nc")
	if err != nil {
		t.Fatal(err)
	}
	if info.Dataset != DatasetDaily {
		t.Errorf("expected daily, got %s", info.Dataset)
	}
	checkValue(t, "DATE", info.TimeLabel().Format(DateFormat), "20240704")

	info, err = ParseProductName("daymet_v4_daily_na_prcp_2023.nc")
	if err != nil {
		t.Fatal(err)
	}
	checkValue(t, "VAR", info.Variable, "prcp")
	checkValue(t, "YEAR", info.Begin.Format("2006"), "2023")
}

func TestDatasetString(t *testing.T) {
	for _, name := range []string{"daymet", "monthly", "daily", "Monthly"} {
		d, err := DatasetString(name)
		if err != nil {
			t.Errorf("DatasetString(%s): %v", name, err)
		} else if !d.IsADataset() || d == DatasetUnknown {
			t.Errorf("DatasetString(%s): unexpected %d", name, d)
		}
	}
	if _, err := DatasetString("weekly"); err == nil {
		t.Error("weekly is not a dataset")
	}
}

func TestFormatBrackets(t *testing.T) {
	checkValue(t, "format", FormatBrackets("{A}_{B}_{A}", map[string]string{"A": "1"}, map[string]string{"B": "2"}), "1_2_1")
}
