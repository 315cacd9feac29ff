// Command follow feeds live coordinates to a district tracker and prints every state change.
//
// Input is newline-delimited JSON on stdin, one reading per line:
//
//	{"lat": 37.5665, "lng": 126.978, "accuracy": 12}
//	null
//
// A null line means the position was lost.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/treemap/internal/config"
	"github.com/i474232898/treemap/internal/geo"
	"github.com/i474232898/treemap/internal/geocoding"
	"github.com/i474232898/treemap/internal/logging"
	"github.com/i474232898/treemap/internal/tracker"
)

// event is the printed form of a tracker.State.
type event struct {
	Status   tracker.Status             `json:"status"`
	Code     string                     `json:"sig_cd,omitempty"`
	Name     string                     `json:"sig_kor_nm,omitempty"`
	English  string                     `json:"sig_eng_nm,omitempty"`
	Kind     tracker.ErrorKind          `json:"kind,omitempty"`
	Message  string                     `json:"message,omitempty"`
	Boundary *geojson.FeatureCollection `json:"geojson,omitempty"`
}

var withGeometry = flag.Bool("geojson", false, "Include the boundary FeatureCollection in each event")

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("follow")

	client := geocoding.NewClient(cfg.Tracker.GeocoderURL, &http.Client{Timeout: cfg.HTTPTimeout}, geocoding.BackoffConfig{})
	tr := tracker.New(client, nil,
		tracker.WithQuietPeriod(cfg.Tracker.QuietPeriod),
		tracker.WithMaxAccuracy(cfg.Tracker.MaxAccuracy),
		tracker.WithFetchTimeout(cfg.Tracker.FetchTimeout),
		tracker.WithLogger(log),
	)
	states, unsubscribe := tr.Subscribe(16)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		enc := json.NewEncoder(os.Stdout)
		for s := range states {
			ev := event{Status: s.Status, Kind: s.Kind, Message: s.Message}
			if s.Boundary != nil {
				ev.Code = s.Boundary.Code
				ev.Name = s.Boundary.KoreanName
				ev.English = s.Boundary.EnglishName
				if *withGeometry {
					ev.Boundary = s.Boundary.Features
				}
			}
			if err := enc.Encode(ev); err != nil {
				log.WithError(err).Error("write state")
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	lines := make(chan []byte)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- append([]byte(nil), sc.Bytes()...)
		}
		if err := sc.Err(); err != nil {
			log.WithError(err).Error("read stdin")
		}
	}()

	eof := false
loop:
	for {
		select {
		case <-sig:
			break loop
		case line, ok := <-lines:
			if !ok {
				eof = true
				break loop
			}
			if len(line) == 0 {
				continue
			}
			var loc *geo.Coordinate
			if err := json.Unmarshal(line, &loc); err != nil {
				log.WithError(err).Warn("skipping malformed line")
				continue
			}
			tr.Observe(loc)
		}
	}

	// On EOF, let the last debounce fire and its lookup finish.
	if eof {
		select {
		case <-time.After(cfg.Tracker.QuietPeriod + 50*time.Millisecond):
			waitSettled(tr, sig)
		case <-sig:
		}
	}
	tr.Close()
	<-done
}

// waitSettled blocks until the tracker leaves the loading state or a signal arrives.
func waitSettled(tr *tracker.Tracker, sig <-chan os.Signal) {
	ch, unsubscribe := tr.Subscribe(1)
	defer unsubscribe()

	if tr.State().Status != tracker.StatusLoading {
		return
	}
	for {
		select {
		case s, ok := <-ch:
			if !ok || s.Status != tracker.StatusLoading {
				return
			}
		case <-sig:
			return
		}
	}
}
