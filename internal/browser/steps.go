// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
	xlog "github.com/maccrin/meetbot/internal/log"
)

// ErrJoinButtonNotFound means no join control appeared after all retries.
var ErrJoinButtonNotFound = errors.New("join button not found")

// step runs actions on the tab, bounded by the step timeout and by ctx.
func (w *workspace) step(ctx context.Context, name string, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(w.tabCtx, w.cfg.StepTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	err := chromedp.Run(stepCtx, actions...)
	if err != nil && ctx.Err() != nil {
		err = context.Cause(ctx)
	}
	w.logger.Debug().Err(err).
		Str(xlog.FieldEvent, "browser.step").
		Str("step", name).
		Dur("elapsed", time.Since(start)).
		Msg("browser step finished")
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Authenticate signs in with the configured account.
func (w *workspace) Authenticate(ctx context.Context, creds ports.Credentials) error {
	if creds.Email == "" || creds.Password == "" {
		return errors.New("credentials missing")
	}
	sel := w.cfg.Selectors

	if err := w.step(ctx, "open login page", chromedp.Navigate(sel.LoginURL)); err != nil {
		return err
	}
	if err := w.step(ctx, "enter email",
		chromedp.WaitVisible(sel.Email, chromedp.ByQuery),
		chromedp.Clear(sel.Email, chromedp.ByQuery),
		chromedp.SendKeys(sel.Email, creds.Email, chromedp.ByQuery),
		chromedp.Click(sel.EmailNext, chromedp.ByQuery),
	); err != nil {
		return err
	}
	if err := w.step(ctx, "enter password",
		chromedp.WaitVisible(sel.Password, chromedp.ByQuery),
		chromedp.SendKeys(sel.Password, creds.Password, chromedp.ByQuery),
		chromedp.Click(sel.PasswordNext, chromedp.ByQuery),
	); err != nil {
		return err
	}
	if sel.LoggedInProbe != "" {
		if err := w.step(ctx, "confirm sign-in", chromedp.WaitReady(sel.LoggedInProbe, chromedp.ByQuery)); err != nil {
			return err
		}
	}
	w.logger.Info().Str(xlog.FieldEvent, "browser.authenticated").Msg("signed in")
	return nil
}

// Join opens the meeting, silences camera and microphone, and clicks the
// first join control found. It returns once the in-meeting marker shows.
func (w *workspace) Join(ctx context.Context, meetingURL string) error {
	sel := w.cfg.Selectors

	if err := w.step(ctx, "open meeting", chromedp.Navigate(meetingURL)); err != nil {
		return err
	}

	if sel.NameInput != "" && w.cfg.DisplayName != "" {
		var nodes []*cdp.Node
		if err := w.step(ctx, "probe name input",
			chromedp.Nodes(sel.NameInput, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)),
		); err != nil {
			return err
		}
		if len(nodes) > 0 {
			if err := w.step(ctx, "enter display name",
				chromedp.SendKeys(sel.NameInput, w.cfg.DisplayName, chromedp.ByQuery),
			); err != nil {
				return err
			}
		}
	}

	if len(sel.MediaToggles) > 0 {
		var toggled int
		if err := w.step(ctx, "mute media", chromedp.Evaluate(muteScript(sel.MediaToggles), &toggled)); err != nil {
			w.logger.Warn().Err(err).Str(xlog.FieldEvent, "browser.mute_failed").Msg("could not toggle media off")
		}
	}

	if err := w.clickJoin(ctx); err != nil {
		return err
	}

	if sel.InMeeting != "" {
		if err := w.step(ctx, "wait admitted", chromedp.WaitVisible(sel.InMeeting, chromedp.ByQuery)); err != nil {
			return err
		}
	}
	w.logger.Info().Str(xlog.FieldEvent, "browser.joined").Msg("joined meeting")
	return nil
}

// clickJoin retries because the join button renders late on slow pages.
func (w *workspace) clickJoin(ctx context.Context) error {
	sel := w.cfg.Selectors
	for attempt := 1; attempt <= w.cfg.JoinRetries; attempt++ {
		for _, s := range sel.JoinButtons {
			var nodes []*cdp.Node
			if err := w.step(ctx, "probe join button",
				chromedp.Nodes(s, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)),
			); err != nil {
				return err
			}
			if len(nodes) > 0 {
				return w.step(ctx, "click join", chromedp.Click(s, chromedp.ByQuery))
			}
		}
		if len(sel.JoinTexts) > 0 {
			var clicked bool
			if err := w.step(ctx, "click join by text", chromedp.Evaluate(clickByTextScript(sel.JoinTexts), &clicked)); err != nil {
				return err
			}
			if clicked {
				return nil
			}
		}

		w.logger.Debug().Int(xlog.FieldAttempt, attempt).Str(xlog.FieldEvent, "browser.join_retry").
			Msg("join button not present yet")
		if attempt == w.cfg.JoinRetries {
			break
		}
		t := time.NewTimer(w.cfg.JoinDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return context.Cause(ctx)
		case <-t.C:
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrJoinButtonNotFound, w.cfg.JoinRetries)
}

func jsStrings(v []string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// muteScript clicks "Turn off <device>" buttons and reports how many it hit.
func muteScript(devices []string) string {
	return `(() => {
  let n = 0;
  for (const d of ` + jsStrings(devices) + `) {
    const b = document.querySelector('[aria-label^="Turn off ' + d + '" i]');
    if (b) { b.click(); n++; }
  }
  return n;
})()`
}

// clickByTextScript clicks the first button whose text matches one of texts.
func clickByTextScript(texts []string) string {
	return `(() => {
  const want = ` + jsStrings(texts) + `;
  for (const b of document.querySelectorAll('button, [role="button"]')) {
    const t = (b.innerText || '').trim();
    if (want.some(w => t.includes(w))) { b.click(); return true; }
  }
  return false;
})()`
}
