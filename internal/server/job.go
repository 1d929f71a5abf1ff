package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/philipparndt/gocad/pkg/analysis"
	"github.com/philipparndt/gocad/pkg/convert"
)

type jobStatus string

const (
	jobConverting jobStatus = "converting"
	jobDone       jobStatus = "done"
	jobFailed     jobStatus = "failed"
)

// event is one progress message on a job's websocket stream: an attempt
// entry while the pipeline runs, then a terminal done or failed message.
type event struct {
	Type    string           `json:"type"`
	Attempt *convert.Attempt `json:"attempt,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// job is one upload's lifecycle: conversion progress, the final report and
// the rendered artifacts, held in memory until the TTL janitor removes it.
type job struct {
	id      string
	created time.Time

	mu          sync.Mutex
	status      jobStatus
	report      *analysis.Report
	attempts    []convert.Attempt
	failure     string
	artifacts   map[string][]byte
	events      []event
	subscribers map[chan event]struct{}
}

func newJob() *job {
	return &job{
		id:          uuid.NewString(),
		created:     time.Now(),
		status:      jobConverting,
		subscribers: make(map[chan event]struct{}),
	}
}

// publish records an event and fans it out to live subscribers. A terminal
// event closes every subscription.
func (j *job) publish(e event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.events = append(j.events, e)
	for ch := range j.subscribers {
		select {
		case ch <- e:
		default: // slow consumer, it will catch up from the replay
		}
	}
	if e.Type != "attempt" {
		for ch := range j.subscribers {
			close(ch)
		}
		j.subscribers = make(map[chan event]struct{})
	}
}

// subscribe returns the events recorded so far plus a live channel, which
// is nil when the job already reached a terminal state.
func (j *job) subscribe() ([]event, chan event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	replay := make([]event, len(j.events))
	copy(replay, j.events)
	if j.status != jobConverting {
		return replay, nil
	}
	ch := make(chan event, 16)
	j.subscribers[ch] = struct{}{}
	return replay, ch
}

func (j *job) unsubscribe(ch chan event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.subscribers[ch]; ok {
		delete(j.subscribers, ch)
		close(ch)
	}
}

func (j *job) complete(report *analysis.Report, attempts []convert.Attempt, artifacts map[string][]byte) {
	j.mu.Lock()
	j.status = jobDone
	j.report = report
	j.attempts = attempts
	j.artifacts = artifacts
	j.mu.Unlock()
	j.publish(event{Type: "done"})
}

func (j *job) fail(attempts []convert.Attempt, err error) {
	j.mu.Lock()
	j.status = jobFailed
	j.attempts = attempts
	j.failure = err.Error()
	j.mu.Unlock()
	j.publish(event{Type: "failed", Error: err.Error()})
}

// snapshot returns the job state for the JSON API.
func (j *job) snapshot() jobResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	return jobResponse{
		ID:       j.id,
		Status:   string(j.status),
		Report:   j.report,
		Attempts: j.attempts,
		Error:    j.failure,
	}
}

func (j *job) artifact(name string) ([]byte, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	data, ok := j.artifacts[name]
	return data, ok
}

// jobResponse is the flat JSON shape shared by the upload and status
// endpoints.
type jobResponse struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Report   *analysis.Report  `json:"report,omitempty"`
	Attempts []convert.Attempt `json:"attempts"`
	Error    string            `json:"error,omitempty"`
}
