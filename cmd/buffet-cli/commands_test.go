package main

import (
	"errors"
	"flag"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-01T15:04:05Z", time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC), true},
		{"yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		got, err := parseTime(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("parseTime(%q) err = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && !got.Equal(tt.want) {
			t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFirstArg(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	if err := set.Parse([]string{"bt-1"}); err != nil {
		t.Fatal(err)
	}
	c := cli.NewContext(cli.NewApp(), set, nil)
	if id, err := firstArg(c); err != nil || id != "bt-1" {
		t.Errorf("firstArg = %q, %v", id, err)
	}

	empty := flag.NewFlagSet("empty", flag.ContinueOnError)
	if _, err := firstArg(cli.NewContext(cli.NewApp(), empty, nil)); !errors.Is(err, errIDRequired) {
		t.Errorf("firstArg(empty) err = %v, want errIDRequired", err)
	}
}
