package service

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestStringSet(t *testing.T) {
	ss := StringSet{}
	ss.Push("b")
	ss.Push("a")
	ss.Push("b")
	if !reflect.DeepEqual(ss.Slice(), []string{"a", "b"}) {
		t.Errorf("unexpected %v", ss.Slice())
	}
	if !ss.Exists("a") || ss.Exists("c") {
		t.Fail()
	}
	ss.Pop("a")
	if ss.Exists("a") || len(ss) != 1 {
		t.Fail()
	}
}

func TestToJSON(t *testing.T) {
	if err := ToJSON(map[string]int{"a": 1}, "", "ignored.json"); err != nil {
		t.Error(err)
	}

	dir := filepath.Join(t.TempDir(), "reports")
	if err := ToJSON(map[string]int{"a": 1}, dir, "report.json"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatal(err)
	}
	v := map[string]int{}
	if err := json.Unmarshal(data, &v); err != nil || v["a"] != 1 {
		t.Errorf("unexpected content %s: %v", data, err)
	}
}
