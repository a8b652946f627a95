// Copyright (c) 2026 Mina Ibrahim
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/dispatch"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/extract"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/models"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/session"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/store"
)

type fakeStorage struct {
	monitors map[int64]models.MonitorConfig
	webhooks map[int64]models.WebhookConfig
	emails   map[int64]models.ProcessedEmail
	nextID   int64

	lastFilter store.EmailFilter
	pingErr    error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		monitors: make(map[int64]models.MonitorConfig),
		webhooks: make(map[int64]models.WebhookConfig),
		emails:   make(map[int64]models.ProcessedEmail),
	}
}

func (f *fakeStorage) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStorage) CreateMonitor(_ context.Context, m models.MonitorConfig) (*models.MonitorConfig, error) {
	m.ID = f.id()
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	f.monitors[m.ID] = m
	return &m, nil
}

func (f *fakeStorage) GetMonitor(_ context.Context, id int64) (*models.MonitorConfig, error) {
	if m, ok := f.monitors[id]; ok {
		return &m, nil
	}
	return nil, nil
}

func (f *fakeStorage) ListMonitors(context.Context) ([]models.MonitorConfig, error) {
	var out []models.MonitorConfig
	for _, m := range f.monitors {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStorage) UpdateMonitor(_ context.Context, m models.MonitorConfig) (*models.MonitorConfig, error) {
	if _, ok := f.monitors[m.ID]; !ok {
		return nil, nil
	}
	m.UpdatedAt = time.Now()
	f.monitors[m.ID] = m
	return &m, nil
}

func (f *fakeStorage) DeleteMonitor(_ context.Context, id int64) (bool, error) {
	if _, ok := f.monitors[id]; !ok {
		return false, nil
	}
	delete(f.monitors, id)
	return true, nil
}

func (f *fakeStorage) CreateWebhook(_ context.Context, w models.WebhookConfig) (*models.WebhookConfig, error) {
	w.ID = f.id()
	w.CreatedAt = time.Now()
	w.UpdatedAt = w.CreatedAt
	f.webhooks[w.ID] = w
	return &w, nil
}

func (f *fakeStorage) GetWebhook(_ context.Context, id int64) (*models.WebhookConfig, error) {
	if w, ok := f.webhooks[id]; ok {
		return &w, nil
	}
	return nil, nil
}

func (f *fakeStorage) ListWebhooks(context.Context) ([]models.WebhookConfig, error) {
	var out []models.WebhookConfig
	for _, w := range f.webhooks {
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeStorage) UpdateWebhook(_ context.Context, w models.WebhookConfig) (*models.WebhookConfig, error) {
	if _, ok := f.webhooks[w.ID]; !ok {
		return nil, nil
	}
	w.UpdatedAt = time.Now()
	f.webhooks[w.ID] = w
	return &w, nil
}

func (f *fakeStorage) DeleteWebhook(_ context.Context, id int64) (bool, error) {
	if _, ok := f.webhooks[id]; !ok {
		return false, nil
	}
	delete(f.webhooks, id)
	return true, nil
}

func (f *fakeStorage) ListProcessed(_ context.Context, filter store.EmailFilter) ([]models.ProcessedEmail, int, error) {
	f.lastFilter = filter
	var out []models.ProcessedEmail
	for _, e := range f.emails {
		out = append(out, e)
	}
	return out, len(out), nil
}

func (f *fakeStorage) GetProcessed(_ context.Context, id int64) (*models.ProcessedEmail, error) {
	if e, ok := f.emails[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (f *fakeStorage) DeleteProcessed(_ context.Context, id int64) (bool, error) {
	if _, ok := f.emails[id]; !ok {
		return false, nil
	}
	delete(f.emails, id)
	return true, nil
}

func (f *fakeStorage) ClearProcessed(context.Context) (int64, error) {
	n := int64(len(f.emails))
	f.emails = make(map[int64]models.ProcessedEmail)
	return n, nil
}

func (f *fakeStorage) Stats(context.Context) (*store.DashboardStats, error) {
	return &store.DashboardStats{
		TotalProcessed: len(f.emails),
		RecentEmails:   []models.ProcessedEmail{},
	}, nil
}

func (f *fakeStorage) Ping(context.Context) error { return f.pingErr }

type fakeDeliverer struct {
	delivered []models.WebhookConfig
	result    dispatch.Result
}

func (f *fakeDeliverer) Deliver(_ context.Context, wh models.WebhookConfig, _ extract.Message) dispatch.Result {
	f.delivered = append(f.delivered, wh)
	res := f.result
	res.Webhook = wh.Name
	return res
}

type fakeAuth struct {
	configured  bool
	authorized  bool
	exchangeErr error
	exchanged   []string
}

func (f *fakeAuth) Configured() bool { return f.configured }
func (f *fakeAuth) Authorized() bool { return f.authorized }

func (f *fakeAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + state
}

func (f *fakeAuth) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	f.exchanged = append(f.exchanged, code)
	f.authorized = true
	return &oauth2.Token{AccessToken: "tok"}, nil
}

func (f *fakeAuth) Reset() error {
	f.authorized = false
	return nil
}

type fakeSeen struct {
	forgotten []string
	resets    int
}

func (f *fakeSeen) Forget(messageID string) { f.forgotten = append(f.forgotten, messageID) }
func (f *fakeSeen) Reset()                  { f.resets++ }

type fakeRunner struct{ running bool }

func (f *fakeRunner) IsRunning() bool { return f.running }

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type testEnv struct {
	store  *fakeStorage
	auth   *fakeAuth
	states *session.Store
	sender *fakeDeliverer
	runner *fakeRunner
	events *fakePinger
	seen   *fakeSeen
	srv    *httptest.Server
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:  newFakeStorage(),
		auth:   &fakeAuth{configured: true},
		states: session.New(10 * time.Minute),
		sender: &fakeDeliverer{},
		runner: &fakeRunner{},
		events: &fakePinger{},
		seen:   &fakeSeen{},
	}
	env.srv = httptest.NewServer(Handlers(Deps{
		Store:      env.store,
		Dispatcher: env.sender,
		Auth:       env.auth,
		States:     env.states,
		Monitor:    env.runner,
		Events:     env.events,
		Seen:       env.seen,
	}))
	return env
}

func (e *testEnv) close() { e.srv.Close() }

func newServerWithHook(e *testEnv, onAuthorized func()) *httptest.Server {
	return httptest.NewServer(Handlers(Deps{
		Store:        e.store,
		Dispatcher:   e.sender,
		Auth:         e.auth,
		States:       e.states,
		Monitor:      e.runner,
		Events:       e.events,
		OnAuthorized: onAuthorized,
	}))
}

var errPingFailed = errors.New("connection refused")

// do issues a request against the test server without following
// redirects, so OAuth redirect responses can be inspected.
func (e *testEnv) do(method, path, body string) (*http.Response, error) {
	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequest(method, e.srv.URL+path, nil)
	} else {
		req, err = http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, err
	}
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return client.Do(req)
}
