package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voicecampaign/pkg/utils"
)

// Recorder decouples usage bookkeeping from the caller's critical path.
// Record never blocks the caller on the bucket write; entries drain through
// a bounded channel and a single background goroutine. If the channel is
// full the write happens synchronously instead of being dropped: losing a
// billing record is worse than a slow webhook.
type Recorder struct {
	svc *Service
	log *slog.Logger

	ch   chan record
	wg   sync.WaitGroup
	once sync.Once

	// writeTimeout bounds each background bucket write.
	writeTimeout time.Duration
}

type record struct {
	tenantID string
	usage    Usage
}

func NewRecorder(svc *Service, buffer int, log *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		svc:          svc,
		log:          log,
		ch:           make(chan record, buffer),
		writeTimeout: 10 * time.Second,
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Record hands the delta to the background writer.
func (r *Recorder) Record(tenantID string, u Usage) {
	select {
	case r.ch <- record{tenantID: tenantID, usage: u}:
	default:
		// Queue full; write inline rather than drop.
		r.write(record{tenantID: tenantID, usage: u})
	}
}

// Close stops intake and drains everything already queued.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.ch) })
	r.wg.Wait()
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for rec := range r.ch {
		r.write(rec)
	}
}

func (r *Recorder) write(rec record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()
	if err := r.svc.RecordUsage(ctx, rec.tenantID, rec.usage); err != nil {
		utils.UsageRecordFailures.Inc()
		r.log.Error("usage record failed",
			"tenant_id", rec.tenantID,
			"provider", rec.usage.Provider,
			"err", err)
	}
}
