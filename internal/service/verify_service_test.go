package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/googlesamples/android-credentials/internal/config"
	"github.com/googlesamples/android-credentials/internal/models"
	"github.com/googlesamples/android-credentials/internal/repository"
	"github.com/sirupsen/logrus"
)

type fakeSend struct {
	to    string
	body  string
	debug bool
}

type fakeDispatcher struct {
	mu    sync.Mutex
	sends []fakeSend
	err   error
}

func (d *fakeDispatcher) Send(_ context.Context, to, body string, debug bool) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	d.sends = append(d.sends, fakeSend{to: to, body: body, debug: debug})
	return fmt.Sprintf("SM%04d", len(d.sends)), nil
}

func (d *fakeDispatcher) sendCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sends)
}

func newTestService(dispatcher *fakeDispatcher) (*VerifyService, *repository.MemoryOTPStore) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := repository.NewMemoryOTPStore()
	cfg := &config.OTPConfig{Length: 6, Expiry: 900 * time.Second}

	return NewVerifyService(store, dispatcher, cfg, logger), store
}

func randomClient() models.ClientConfig {
	return models.ClientConfig{
		ID:          "prod",
		CachePrefix: "prod",
		SMSTemplate: "<#> Your verification code is %(otp)s\n%(app_hash)s",
		AppHash:     "FA+9qCX9VSu",
	}
}

func demoClient() models.ClientConfig {
	return models.ClientConfig{
		ID:          "acme",
		CachePrefix: "acme",
		SMSTemplate: "<#> Your verification code is %(otp)s\n%(app_hash)s",
		AppHash:     "FA+9qCX9VSu",
		ForceOTP:    "000000",
		Debug:       true,
	}
}

func TestRequestIssuesSixDigitCode(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, _ := newTestService(dispatcher)
	ctx := context.Background()

	code, window, err := svc.Request(ctx, randomClient(), "+16505550101")
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if !regexp.MustCompile(`^\d{6}$`).MatchString(code) {
		t.Errorf("code = %q, want 6 zero-padded digits", code)
	}
	if window != 900 {
		t.Errorf("window = %d, want 900", window)
	}
	if dispatcher.sendCount() != 1 {
		t.Fatalf("dispatch count = %d, want 1", dispatcher.sendCount())
	}

	sent := dispatcher.sends[0]
	if sent.to != "+16505550101" {
		t.Errorf("sent to %q, want +16505550101", sent.to)
	}
	want := "<#> Your verification code is " + code + "\nFA+9qCX9VSu"
	if sent.body != want {
		t.Errorf("rendered message = %q, want %q", sent.body, want)
	}
	if sent.debug {
		t.Error("debug flag set for a non-debug client")
	}
}

func TestRequestIdempotentWhileActive(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, _ := newTestService(dispatcher)
	ctx := context.Background()
	client := randomClient()

	first, _, err := svc.Request(ctx, client, "+16505550101")
	if err != nil {
		t.Fatalf("first Request returned error: %v", err)
	}
	second, window, err := svc.Request(ctx, client, "+16505550101")
	if err != nil {
		t.Fatalf("second Request returned error: %v", err)
	}

	if first != second {
		t.Errorf("re-request returned %q, want the active code %q", second, first)
	}
	if window != 900 {
		t.Errorf("window = %d, want 900", window)
	}
	if dispatcher.sendCount() != 1 {
		t.Errorf("dispatch count = %d, want 1", dispatcher.sendCount())
	}
}

func TestRequestForceOTPDebugClient(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, _ := newTestService(dispatcher)
	ctx := context.Background()

	code, window, err := svc.Request(ctx, demoClient(), "+16505550101")
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if code != "000000" {
		t.Errorf("code = %q, want the forced 000000", code)
	}
	if window != 900 {
		t.Errorf("window = %d, want 900", window)
	}
	if dispatcher.sendCount() != 1 {
		t.Fatalf("dispatch count = %d, want 1", dispatcher.sendCount())
	}
	if !dispatcher.sends[0].debug {
		t.Error("debug flag not propagated to dispatcher")
	}
}

func TestRequestAfterReset(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, _ := newTestService(dispatcher)
	ctx := context.Background()
	client := randomClient()

	first, _, err := svc.Request(ctx, client, "+16505550101")
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}

	deleted, err := svc.Reset(ctx, client, "+16505550101")
	if err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if !deleted {
		t.Fatal("Reset of an active code reported false")
	}

	second, _, err := svc.Request(ctx, client, "+16505550101")
	if err != nil {
		t.Fatalf("Request after reset returned error: %v", err)
	}
	if dispatcher.sendCount() != 2 {
		t.Errorf("dispatch count = %d, want 2", dispatcher.sendCount())
	}
	if first == second {
		// One-in-a-million collision for real codes; treat as failure.
		t.Errorf("code after reset = %q, same as before reset", second)
	}
}

func TestResetWithoutActiveCode(t *testing.T) {
	svc, _ := newTestService(&fakeDispatcher{})

	deleted, err := svc.Reset(context.Background(), randomClient(), "+16505550101")
	if err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if deleted {
		t.Error("Reset with no active code reported true")
	}
}

func TestVerifyWordBoundaryMatch(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, _ := newTestService(dispatcher)
	ctx := context.Background()
	client := demoClient()

	if _, _, err := svc.Request(ctx, client, "+16505550101"); err != nil {
		t.Fatalf("Request returned error: %v", err)
	}

	cases := []struct {
		name    string
		message string
		want    bool
	}{
		{"exact token", "your code is 000000", true},
		{"token with punctuation", "code:000000.", true},
		{"code alone", "000000", true},
		{"longer digit run", "0000001", false},
		{"leading digit", "90000001", false},
		{"embedded digits", "10000001", false},
		{"different code", "your code is 123456", false},
		{"empty message", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.Verify(ctx, client, "+16505550101", tc.message)
			if err != nil {
				t.Fatalf("Verify returned error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Verify(%q) = %v, want %v", tc.message, got, tc.want)
			}
		})
	}
}

func TestVerifyNonDestructive(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, _ := newTestService(dispatcher)
	ctx := context.Background()
	client := demoClient()

	if _, _, err := svc.Request(ctx, client, "+16505550101"); err != nil {
		t.Fatalf("Request returned error: %v", err)
	}

	// A match must not consume the record: repeated verification keeps
	// succeeding until expiry or reset.
	for i := 0; i < 3; i++ {
		ok, err := svc.Verify(ctx, client, "+16505550101", "your code is 000000")
		if err != nil {
			t.Fatalf("Verify #%d returned error: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("Verify #%d = false, want true", i+1)
		}
	}

	// Still re-requestable without a new dispatch.
	if _, _, err := svc.Request(ctx, client, "+16505550101"); err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if dispatcher.sendCount() != 1 {
		t.Errorf("dispatch count = %d, want 1", dispatcher.sendCount())
	}
}

func TestVerifyNoActiveCode(t *testing.T) {
	svc, _ := newTestService(&fakeDispatcher{})

	ok, err := svc.Verify(context.Background(), randomClient(), "+16505550101", "123456")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Error("Verify with no active code = true, want false")
	}
}

func TestRequestDeliveryFailureKeepsRecord(t *testing.T) {
	dispatcher := &fakeDispatcher{err: errors.New("provider outage")}
	svc, store := newTestService(dispatcher)
	ctx := context.Background()
	client := randomClient()

	_, _, err := svc.Request(ctx, client, "+16505550101")
	if err == nil {
		t.Fatal("Request with failing dispatcher returned no error")
	}

	// No compensating rollback: the stored code stays verifiable even
	// though the message never went out.
	code, ok, err := store.Get(ctx, "prod:phone:+16505550101")
	if err != nil {
		t.Fatalf("store Get returned error: %v", err)
	}
	if !ok {
		t.Fatal("record missing after delivery failure")
	}

	matched, err := svc.Verify(ctx, client, "+16505550101", "my code is "+code)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !matched {
		t.Error("stored code not verifiable after delivery failure")
	}
}

func TestConcurrentRequestsSingleDispatch(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, _ := newTestService(dispatcher)
	ctx := context.Background()
	client := randomClient()

	const workers = 16
	codes := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			codes[n], _, errs[n] = svc.Request(ctx, client, "+16505550101")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("Request #%d returned error: %v", i, errs[i])
		}
		if codes[i] != codes[0] {
			t.Fatalf("Request #%d returned %q, others got %q", i, codes[i], codes[0])
		}
	}
	if dispatcher.sendCount() != 1 {
		t.Errorf("dispatch count = %d, want exactly 1", dispatcher.sendCount())
	}
}

// contendedStore makes the caller lose the insert race once by slipping a
// competing record in just before the delegated Add.
type contendedStore struct {
	repository.OTPStore
	once sync.Once
}

func (s *contendedStore) Add(ctx context.Context, key, code string, ttl time.Duration) (bool, error) {
	s.once.Do(func() {
		_, _ = s.OTPStore.Add(ctx, key, "999999", ttl)
	})
	return s.OTPStore.Add(ctx, key, code, ttl)
}

func TestRequestRaceLoserAdoptsWinnerCode(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dispatcher := &fakeDispatcher{}
	store := &contendedStore{OTPStore: repository.NewMemoryOTPStore()}
	cfg := &config.OTPConfig{Length: 6, Expiry: 900 * time.Second}
	svc := NewVerifyService(store, dispatcher, cfg, logger)

	code, window, err := svc.Request(context.Background(), randomClient(), "+16505550101")
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if code != "999999" {
		t.Errorf("code = %q, want the race winner's 999999", code)
	}
	if window != 900 {
		t.Errorf("window = %d, want 900", window)
	}
	if dispatcher.sendCount() != 0 {
		t.Errorf("dispatch count = %d, want 0 for the race loser", dispatcher.sendCount())
	}
}
