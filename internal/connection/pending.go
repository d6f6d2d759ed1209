package connection

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// PendingJob は未接続時などに送信できなかった印刷ジョブ
type PendingJob struct {
	ID        string
	Data      []byte
	CreatedAt time.Time
}

// slot holds at most one pending job. It is only touched from the machine's
// event loop.
type slot struct {
	job *PendingJob
}

// offer stores a copy of data, replacing any previous job.
func (s *slot) offer(data []byte) PendingJob {
	id, err := gonanoid.New()
	if err != nil {
		id = fmt.Sprintf("job-%d", time.Now().UnixNano())
	}
	job := PendingJob{
		ID:        id,
		Data:      append([]byte(nil), data...),
		CreatedAt: time.Now(),
	}
	s.job = &job
	return job
}

func (s *slot) peek() (PendingJob, bool) {
	if s.job == nil {
		return PendingJob{}, false
	}
	return *s.job, true
}

func (s *slot) clear() {
	s.job = nil
}

func (s *slot) empty() bool {
	return s.job == nil
}
