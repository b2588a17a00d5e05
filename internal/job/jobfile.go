package job

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// jobFile is the YAML document accepted by ParseJobFile:
//
//	jobs:
//	  - source: {account: 1, path: /data/in}
//	    target: {account: 2, path: /upload}
//	    scheduling: DAILY_WINDOW
//	    window: {begin: "22:00", end: "23:59:59"}
type jobFile struct {
	Jobs []jobEntry `yaml:"jobs"`
}

type locationEntry struct {
	Account uint   `yaml:"account"`
	Path    string `yaml:"path"`
}

type jobEntry struct {
	Source     locationEntry `yaml:"source"`
	Target     locationEntry `yaml:"target"`
	Scheduling Scheduling    `yaml:"scheduling"`
	Rank       *int64        `yaml:"rank"`
	Window     *struct {
		Begin string `yaml:"begin"`
		End   string `yaml:"end"`
	} `yaml:"window"`
}

// ParseJobFile reads job definitions. Accounts are only referenced by id;
// the caller resolves them before saving. Jobs without an explicit rank get
// rank 0, which the scheduler service replaces with the next free rank.
func ParseJobFile(r io.Reader) ([]*Job, error) {
	var f jobFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "failed to decode job file")
	}

	jobs := make([]*Job, 0, len(f.Jobs))
	for i, e := range f.Jobs {
		j := &Job{
			Status:        StatusCreated,
			Scheduling:    e.Scheduling,
			SourcePath:    e.Source.Path,
			SourceAccount: &Account{ID: e.Source.Account},
			TargetPath:    e.Target.Path,
			TargetAccount: &Account{ID: e.Target.Account},
		}
		if j.Scheduling == "" {
			j.Scheduling = SchedulingImmediate
		}
		if e.Rank != nil {
			j.Rank = *e.Rank
		}
		switch j.Scheduling {
		case SchedulingImmediate:
		case SchedulingDailyWindow:
			if e.Window == nil {
				return nil, errors.Errorf("job #%d: %s scheduling needs a window", i+1, j.Scheduling)
			}
			begin, err := ParseDayInstant(e.Window.Begin)
			if err != nil {
				return nil, errors.Wrapf(err, "job #%d: window begin", i+1)
			}
			end, err := ParseDayInstant(e.Window.End)
			if err != nil {
				return nil, errors.Wrapf(err, "job #%d: window end", i+1)
			}
			j.DayBegin, j.DayEnd = &begin, &end
		default:
			return nil, errors.Errorf("job #%d: unknown scheduling %q", i+1, j.Scheduling)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ParseDayInstant converts "HH:MM" or "HH:MM:SS" into seconds since midnight.
func ParseDayInstant(s string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, errors.Errorf("invalid time of day %q", s)
	}
	limits := []int{24, 60, 60}
	var total int64
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v >= limits[i] {
			return 0, errors.Errorf("invalid time of day %q", s)
		}
		total = total*60 + int64(v)
	}
	if len(parts) == 2 {
		total *= 60
	}
	return total, nil
}
