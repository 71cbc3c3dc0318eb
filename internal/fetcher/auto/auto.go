// Package auto fetches pages with a cheap static probe and re-renders them in
// a browser only when the probe result looks client-rendered.
package auto

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
	"github.com/JakeFAU/hackathon-harvester/internal/logging"
)

// Detector decides whether a probed page needs a headless render;
// *detector.Heuristic satisfies it.
type Detector interface {
	ShouldPromote(page harvest.Page) bool
}

// Factory pairs a probe factory with a headless one.
type Factory struct {
	probe    harvest.SessionFactory
	headless harvest.SessionFactory
	detect   Detector
	logger   *zap.Logger
}

// New builds a Factory. All three collaborators are required.
func New(probe, headless harvest.SessionFactory, detect Detector, logger *zap.Logger) (*Factory, error) {
	if probe == nil || headless == nil || detect == nil {
		return nil, errors.New("auto: probe, headless factory and detector are required")
	}
	return &Factory{
		probe:    probe,
		headless: headless,
		detect:   detect,
		logger:   logging.OrNop(logger).Named("auto"),
	}, nil
}

// Open starts a probe session. The browser session is opened on the first
// promotion and then reused for the rest of the session's life.
func (f *Factory) Open(ctx context.Context) (harvest.Session, error) {
	probe, err := f.probe.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open probe session: %w", err)
	}
	return &Session{factory: f, probe: probe}, nil
}

// Session is owned by one goroutine, like the sessions it wraps.
type Session struct {
	factory  *Factory
	probe    harvest.Session
	headless harvest.Session
	promoted int
}

// Fetch probes url and falls back to the browser when the detector asks for it.
func (s *Session) Fetch(ctx context.Context, url string) (harvest.Page, error) {
	page, err := s.probe.Fetch(ctx, url)
	if err != nil {
		return harvest.Page{}, err
	}
	if !s.factory.detect.ShouldPromote(page) {
		return page, nil
	}
	if s.headless == nil {
		h, err := s.factory.headless.Open(ctx)
		if err != nil {
			return harvest.Page{}, fmt.Errorf("open headless session: %w", err)
		}
		s.headless = h
	}
	s.promoted++
	s.factory.logger.Debug("Promoting page to headless render", zap.String("url", url))
	return s.headless.Fetch(ctx, url)
}

// Promoted returns how many fetches needed the browser.
func (s *Session) Promoted() int { return s.promoted }

// Close closes both underlying sessions.
func (s *Session) Close() error {
	var errs []error
	if err := s.probe.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close probe session: %w", err))
	}
	if s.headless != nil {
		if err := s.headless.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close headless session: %w", err))
		}
	}
	return errors.Join(errs...)
}
