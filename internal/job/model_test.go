package job

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendErrorNewestFirst(t *testing.T) {
	j := &Job{}
	j.AppendError("first", 100)
	j.AppendError("second", 100)

	assert.Equal(t, 2, j.ErrorCount)
	assert.Equal(t, "2:second\n1:first", j.Errors)
}

func TestAppendErrorTruncatesTail(t *testing.T) {
	j := &Job{}
	for i := 0; i < 10; i++ {
		j.AppendError(strings.Repeat("x", 20), 64)
	}
	j.AppendError("latest failure", 64)

	assert.Len(t, j.Errors, 64)
	assert.True(t, strings.HasPrefix(j.Errors, "11:latest failure\n"))
	assert.Equal(t, 11, j.ErrorCount)
}

func TestAddStartedFile(t *testing.T) {
	j := &Job{}
	j.AddStartedFile("a.txt")
	j.AddStartedFile("b.txt")
	assert.Equal(t, "a.txt, b.txt", j.DownloadedFiles)
}

func TestInstantOfDay(t *testing.T) {
	ts := time.Date(2024, 3, 1, 13, 45, 30, 0, time.Local)
	assert.EqualValues(t, 13*3600+45*60+30, InstantOfDay(ts))
}

func TestInWindow(t *testing.T) {
	begin, end := int64(3600), int64(7200)
	j := &Job{DayBegin: &begin, DayEnd: &end}
	assert.True(t, j.InWindow(3600))
	assert.True(t, j.InWindow(7200))
	assert.False(t, j.InWindow(7201))
	assert.False(t, (&Job{}).InWindow(10))
}

func TestAccountAddress(t *testing.T) {
	assert.Equal(t, "example.org:21", (&Account{Host: "example.org", Protocol: ProtocolFTP}).Address())
	assert.Equal(t, "example.org:22", (&Account{Host: "example.org", Protocol: ProtocolSSH}).Address())
	assert.Equal(t, "example.org:2222", (&Account{Host: "example.org", Port: 2222, Protocol: ProtocolSSH}).Address())
}

func TestParseDayInstant(t *testing.T) {
	v, err := ParseDayInstant("22:00")
	require.NoError(t, err)
	assert.EqualValues(t, 22*3600, v)

	v, err = ParseDayInstant("01:02:03")
	require.NoError(t, err)
	assert.EqualValues(t, 3723, v)

	_, err = ParseDayInstant("24:00")
	assert.Error(t, err)
	_, err = ParseDayInstant("noon")
	assert.Error(t, err)
}

func TestParseJobFile(t *testing.T) {
	doc := `
jobs:
  - source: {account: 1, path: /data/in}
    target: {account: 2, path: /upload}
  - source: {account: 2, path: /remote/file.bin}
    target: {account: 1, path: /tmp/out}
    scheduling: DAILY_WINDOW
    rank: 7
    window: {begin: "22:00", end: "23:30"}
`
	jobs, err := ParseJobFile(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, SchedulingImmediate, jobs[0].Scheduling)
	assert.Equal(t, StatusCreated, jobs[0].Status)
	assert.EqualValues(t, 1, jobs[0].SourceAccount.ID)
	assert.Equal(t, "/upload", jobs[0].TargetPath)

	assert.Equal(t, SchedulingDailyWindow, jobs[1].Scheduling)
	assert.EqualValues(t, 7, jobs[1].Rank)
	require.NotNil(t, jobs[1].DayBegin)
	assert.EqualValues(t, 22*3600, *jobs[1].DayBegin)
	assert.EqualValues(t, 23*3600+30*60, *jobs[1].DayEnd)
}

func TestParseJobFileRejectsMissingWindow(t *testing.T) {
	doc := `
jobs:
  - source: {account: 1, path: /a}
    target: {account: 2, path: /b}
    scheduling: DAILY_WINDOW
`
	_, err := ParseJobFile(strings.NewReader(doc))
	assert.Error(t, err)
}
