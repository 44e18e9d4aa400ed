package persona

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Store hands out the current persona. Readers never see a half-applied
// reload: a new persona is swapped in only after it fully validates.
type Store struct {
	cur  atomic.Pointer[Persona]
	path string
}

func NewStore(p *Persona, path string) *Store {
	s := &Store{path: path}
	s.cur.Store(p)
	return s
}

// Current returns the persona in effect.
func (s *Store) Current() *Persona { return s.cur.Load() }

// Reload re-reads the backing file. On error the old persona stays.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	p, err := Load(s.path)
	if err != nil {
		return err
	}
	s.cur.Store(p)
	return nil
}

// Watch reloads the persona whenever its file changes until ctx is done.
// Editors replace files instead of writing them in place, so the parent
// directory is watched and events are filtered by name.
func (s *Store) Watch(ctx context.Context, logger *zerolog.Logger) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("persona watcher: %w", err)
	}
	abs, err := filepath.Abs(s.path)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("persona watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("persona watcher: %w", err)
	}

	go func() {
		defer w.Close()
		const debounce = 300 * time.Millisecond
		var timer *time.Timer
		fire := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				if err := s.Reload(); err != nil {
					logger.Warn().Err(err).Str("path", s.path).Msg("persona reload rejected")
					continue
				}
				logger.Info().Str("path", s.path).Msg("persona reloaded")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("persona watcher error")
			}
		}
	}()
	return nil
}
