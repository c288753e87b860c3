package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"slices"
	"strings"
	"testing"

	"github.com/Sternrassler/c8y-parallel/internal/testutil"
	"github.com/Sternrassler/c8y-parallel/pkg/pagination"
	"github.com/stretchr/testify/require"
)

const devices = "/inventory/managedObjects"

func setupPlatform(t *testing.T, n int) *testutil.MockPlatform {
	t.Helper()
	mock := testutil.NewMockPlatform()
	t.Cleanup(mock.Close)
	mock.SetCollection(devices, "managedObjects", testutil.Documents(n))

	t.Setenv("C8Y_BASE_URL", mock.URL())
	t.Setenv("C8Y_LOG_LEVEL", "error")
	t.Setenv("C8Y_CONFIG", "")
	return mock
}

func TestRun_JSONLines(t *testing.T) {
	chk := require.New(t)
	mock := setupPlatform(t, 23)

	var out bytes.Buffer
	err := run(context.Background(), []string{"-resource", "managedObjects", "-page-size", "5", "-workers", "3"}, &out)
	chk.NoError(err)

	var ids []int
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var d map[string]any
		chk.NoError(json.Unmarshal(scanner.Bytes(), &d))
		ids = append(ids, int(d["id"].(float64)))
	}
	slices.Sort(ids)
	chk.Len(ids, 23)
	chk.Equal(0, ids[0])
	chk.Equal(22, ids[22])
	chk.Equal([]int{1, 2, 3, 4, 5}, mock.PageRequests(devices))
}

func TestRun_JSONLinesWithFields(t *testing.T) {
	chk := require.New(t)
	setupPlatform(t, 4)

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-path", devices,
		"-field", "id=id",
		"-field", "temp=c8y_Temperature.T.value",
		"-mode", "batched",
	}, &out)
	chk.NoError(err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	chk.Len(lines, 4)
	for _, line := range lines {
		var rec map[string]any
		chk.NoError(json.Unmarshal([]byte(line), &rec))
		chk.Len(rec, 2)
		chk.Equal(rec["id"].(float64)/2, rec["temp"])
	}
}

func TestRun_CSV(t *testing.T) {
	chk := require.New(t)
	setupPlatform(t, 7)

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-format", "csv",
		"-field", "name=name",
		"-filter", "name=device-2",
		"-filter", "name=device-5",
	}, &out)
	chk.NoError(err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	chk.Equal("name", lines[0])
	chk.ElementsMatch([]string{"device-2", "device-5"}, lines[1:])
}

func TestRun_Errors(t *testing.T) {
	setupPlatform(t, 1)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown format", []string{"-format", "xml"}, "unknown format"},
		{"csv without fields", []string{"-format", "csv"}, "at least one -field"},
		{"bad filter", []string{"-filter", "nokey"}, "expected key=value"},
		{"unknown resource", []string{"-resource", "widgets"}, "unknown resource"},
		{"bad mode", []string{"-mode", "ranges"}, "fetch.mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), tt.args, &out)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestRun_Help(t *testing.T) {
	err := run(context.Background(), []string{"-h"}, &bytes.Buffer{})
	require.ErrorIs(t, err, flag.ErrHelp)
}

func TestPairs_Filters(t *testing.T) {
	var p pairs
	for _, v := range []string{"type=c8y_Device", "source=1", "source=2", "q=a=b"} {
		require.NoError(t, p.Set(v))
	}

	require.Equal(t, pagination.Filters{
		"type":   "c8y_Device",
		"source": []string{"1", "2"},
		"q":      "a=b",
	}, p.filters())
	require.Equal(t, "type=c8y_Device,source=1,source=2,q=a=b", p.String())
}

func TestRun_ItemsKeyFromPath(t *testing.T) {
	mock := setupPlatform(t, 0)
	mock.SetCollection("/custom/things", "things", testutil.Documents(3))

	var out bytes.Buffer
	err := run(context.Background(), []string{"-path", "/custom/things"}, &out)
	require.NoError(t, err)
	require.Equal(t, 3, strings.Count(out.String(), "\n"))
}
