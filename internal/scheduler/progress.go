package scheduler

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/yarkm13/fetchopusd/internal/job"
)

// jobProgress mirrors per-file driver progress into the job record. One
// instance spans every leg of an attempt, so sizes and byte counts add up
// across files and legs.
type jobProgress struct {
	ctx     context.Context
	persist func(context.Context, *job.Job) error
	job     *job.Job

	cumulSize          int64
	size               int64
	current            int64
	previousDownloaded int64
	percent            int64
}

func newJobProgress(ctx context.Context, j *job.Job, persist func(context.Context, *job.Job) error) *jobProgress {
	j.FileSize = 0
	j.Downloaded = 0
	return &jobProgress{ctx: ctx, persist: persist, job: j}
}

func (p *jobProgress) save() {
	// Progress is still recorded while the run is being cancelled.
	if err := p.persist(context.WithoutCancel(p.ctx), p.job); err != nil {
		log.WithField("job", p.job.ID).Warnf("Failed to save transfer progress: %v", err)
	}
}

func (p *jobProgress) Start(name string, total int64) {
	p.cumulSize += total
	p.size = total
	p.current = 0
	p.percent = 0
	p.job.FileSize = p.cumulSize
	p.job.AddStartedFile(name)
	p.save()
}

func (p *jobProgress) Bytes(transferred int64) bool {
	transferredBytes.Add(float64(transferred - p.current))
	p.current = transferred
	p.job.Downloaded = p.previousDownloaded + transferred
	if p.size > 0 {
		if percent := transferred * 100 / p.size; percent > p.percent {
			p.percent = percent
			p.save()
		}
	}
	return p.ctx.Err() == nil
}

// Done closes the current file. A file larger than announced, or of unknown
// size, grows the job total so Downloaded never exceeds FileSize.
func (p *jobProgress) Done() {
	if p.current > p.size {
		p.cumulSize += p.current - p.size
		p.job.FileSize = p.cumulSize
	}
	p.previousDownloaded += max(p.size, p.current)
	p.job.Downloaded = p.previousDownloaded
	p.save()
}
