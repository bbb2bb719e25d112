package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskboard/domain/core"
	"riskboard/domain/session"
	"riskboard/internal/errors"
	"riskboard/internal/logger"
	"riskboard/internal/metrics"
	sessionstore "riskboard/internal/session"
)

type brokenStore struct {
	loadErr error
	saveErr error
	saves   int
}

func (s *brokenStore) Load(ctx context.Context) (core.ID, error) { return "", s.loadErr }
func (s *brokenStore) Save(ctx context.Context, id core.ID) error {
	s.saves++
	return s.saveErr
}
func (s *brokenStore) Clear(ctx context.Context) error { return s.saveErr }

// recorder collects every session a subscriber receives
type recorder struct {
	mu       sync.Mutex
	name     string
	received []session.Session
	log      *[]string
}

func (r *recorder) callback(s session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, s)
	if r.log != nil {
		*r.log = append(*r.log, r.name)
	}
}

func (r *recorder) sessions() []session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Session(nil), r.received...)
}

func newMock(t *testing.T) (*MockProvider, *sessionstore.MemoryStore) {
	t.Helper()
	store := sessionstore.NewMemoryStore()
	return NewMockProvider(context.Background(), store, metrics.Noop{}, logger.Discard()), store
}

func TestSubscribeDeliversCurrentSessionImmediately(t *testing.T) {
	p, _ := newMock(t)
	r := &recorder{}

	unsubscribe := p.Subscribe(r.callback)
	defer unsubscribe()

	require.Len(t, r.sessions(), 1)
	assert.False(t, r.sessions()[0].SignedIn())
}

func TestSignInDemoAccount(t *testing.T) {
	ctx := context.Background()
	p, store := newMock(t)
	r := &recorder{}
	p.Subscribe(r.callback)

	first, err := p.SignIn(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)
	second, err := p.SignIn(ctx, " Demo@Example.com ", DemoPassword)
	require.NoError(t, err)

	assert.True(t, first.SignedIn())
	assert.Equal(t, first.Identity, second.Identity, "demo identity must be stable")
	assert.Equal(t, first, p.Current())

	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Identity, persisted)

	got := r.sessions()
	require.Len(t, got, 3)
	assert.Equal(t, first, got[1])
	assert.Equal(t, second, got[2])
}

func TestSignInRejectsOtherCredentials(t *testing.T) {
	ctx := context.Background()
	p, store := newMock(t)
	_, err := p.SignIn(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)
	before := p.Current()

	r := &recorder{}
	p.Subscribe(r.callback)

	cases := [][2]string{
		{"x@x.com", "wrong"},
		{DemoEmail, "wrong"},
		{"x@x.com", DemoPassword},
		{"", ""},
	}
	for _, c := range cases {
		_, err := p.SignIn(ctx, c[0], c[1])
		require.Error(t, err)
		assert.Equal(t, errors.CodeInvalidCredential, errors.GetCode(err))
	}

	assert.Equal(t, before, p.Current())
	assert.Len(t, r.sessions(), 1, "failed sign-in must not notify")
	persisted, _ := store.Load(ctx)
	assert.Equal(t, before.Identity, persisted)
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	p, store := newMock(t)

	a, err := p.SignUp(ctx, "nurse@clinic.org", "secret")
	require.NoError(t, err)
	b, err := p.SignUp(ctx, "nurse@clinic.org", "secret")
	require.NoError(t, err)

	assert.True(t, a.SignedIn())
	assert.NotEqual(t, a.Identity, b.Identity, "sign-up fabricates a fresh identity each time")
	persisted, _ := store.Load(ctx)
	assert.Equal(t, b.Identity, persisted)
}

func TestSignUpRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	p, _ := newMock(t)
	r := &recorder{}
	p.Subscribe(r.callback)

	cases := []struct {
		email, password string
	}{
		{"not-an-email", "secret"},
		{"", "secret"},
		{"nurse@clinic.org", ""},
	}
	for _, c := range cases {
		_, err := p.SignUp(ctx, c.email, c.password)
		require.Error(t, err, "%q/%q", c.email, c.password)
		assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	}

	assert.False(t, p.Current().SignedIn())
	assert.Len(t, r.sessions(), 1)
}

func TestSignOutTwiceNotifiesTwice(t *testing.T) {
	ctx := context.Background()
	p, store := newMock(t)
	_, err := p.SignIn(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)

	r := &recorder{}
	p.Subscribe(r.callback)

	require.NoError(t, p.SignOut(ctx))
	require.NoError(t, p.SignOut(ctx))

	got := r.sessions()
	require.Len(t, got, 3)
	assert.True(t, got[0].SignedIn())
	assert.Equal(t, session.Session{}, got[1])
	assert.Equal(t, session.Session{}, got[2])

	persisted, _ := store.Load(ctx)
	assert.True(t, persisted.IsEmpty())
}

func TestNotificationOrderFollowsRegistration(t *testing.T) {
	ctx := context.Background()
	p, _ := newMock(t)

	var order []string
	first := &recorder{name: "first", log: &order}
	second := &recorder{name: "second", log: &order}
	third := &recorder{name: "third", log: &order}
	p.Subscribe(first.callback)
	p.Subscribe(second.callback)
	p.Subscribe(third.callback)
	order = nil

	_, err := p.SignIn(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestUnsubscribeIsIdempotentAndRemovesOne(t *testing.T) {
	ctx := context.Background()
	p, _ := newMock(t)

	r := &recorder{}
	unsubscribeA := p.Subscribe(r.callback)
	unsubscribeB := p.Subscribe(r.callback)
	assert.Equal(t, 2, p.subscriberCount())

	unsubscribeA()
	unsubscribeA()
	assert.Equal(t, 1, p.subscriberCount())

	_, err := p.SignIn(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)
	assert.Len(t, r.sessions(), 3, "two initial deliveries plus one change for the remaining registration")

	unsubscribeB()
	assert.Equal(t, 0, p.subscriberCount())
}

func TestRestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	store := sessionstore.NewMemoryStore()
	require.NoError(t, store.Save(ctx, core.ID("restored-id")))

	p := NewMockProvider(ctx, store, metrics.Noop{}, logger.Discard())
	r := &recorder{}
	p.Subscribe(r.callback)

	require.Len(t, r.sessions(), 1)
	assert.Equal(t, core.ID("restored-id"), r.sessions()[0].Identity)
}

func TestPersistenceFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	store := &brokenStore{loadErr: fmt.Errorf("storage unavailable"), saveErr: fmt.Errorf("quota exceeded")}
	p := NewMockProvider(ctx, store, metrics.Noop{}, logger.Discard())

	r := &recorder{}
	p.Subscribe(r.callback)

	s, err := p.SignIn(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)
	require.NoError(t, p.SignOut(ctx))

	assert.Equal(t, 1, store.saves)
	got := r.sessions()
	require.Len(t, got, 3)
	assert.Equal(t, s, got[1])
	assert.False(t, got[2].SignedIn())
}

func TestReentrantCallbackIsQueued(t *testing.T) {
	ctx := context.Background()
	p, _ := newMock(t)

	var events []string
	p.Subscribe(func(s session.Session) {
		events = append(events, fmt.Sprintf("a:%v", s.SignedIn()))
		if s.SignedIn() {
			require.NoError(t, p.SignOut(ctx))
			events = append(events, "a:signout-returned")
		}
	})
	p.Subscribe(func(s session.Session) {
		events = append(events, fmt.Sprintf("b:%v", s.SignedIn()))
	})
	events = nil

	_, err := p.SignIn(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"a:true", "a:signout-returned", "b:true",
		"a:false", "b:false",
	}, events, "nested notification must wait for the running delivery")
	assert.False(t, p.Current().SignedIn())
}

func TestSubscribeFromCallbackDeliversBeforeReturning(t *testing.T) {
	ctx := context.Background()
	p, _ := newMock(t)

	inner := &recorder{}
	var seenOnReturn int
	p.Subscribe(func(s session.Session) {
		if s.SignedIn() && seenOnReturn == 0 {
			p.Subscribe(inner.callback)
			seenOnReturn = len(inner.sessions())
		}
	})

	_, err := p.SignIn(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)

	assert.Equal(t, 1, seenOnReturn)
	got := inner.sessions()
	require.Len(t, got, 1)
	assert.True(t, got[0].SignedIn())

	require.NoError(t, p.SignOut(ctx))
	got = inner.sessions()
	require.Len(t, got, 2)
	assert.False(t, got[1].SignedIn())
}

func TestChangeDuringInitialDeliveryFollowsIt(t *testing.T) {
	ctx := context.Background()
	p, _ := newMock(t)

	var events []string
	p.Subscribe(func(s session.Session) {
		events = append(events, fmt.Sprintf("a:%v", s.SignedIn()))
		if len(events) == 1 {
			_, err := p.SignIn(ctx, DemoEmail, DemoPassword)
			require.NoError(t, err)
			events = append(events, "a:signin-returned")
		}
	})

	assert.Equal(t, []string{"a:false", "a:signin-returned", "a:true"}, events)
	assert.True(t, p.Current().SignedIn())
}

func TestSubscriberPanicDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	p, _ := newMock(t)

	p.Subscribe(func(s session.Session) {
		if s.SignedIn() {
			panic("boom")
		}
	})
	r := &recorder{}
	p.Subscribe(r.callback)

	_, err := p.SignIn(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)
	require.NoError(t, p.SignOut(ctx))

	assert.Len(t, r.sessions(), 3)
}

func TestConcurrentSubscribersAllSeeLatest(t *testing.T) {
	ctx := context.Background()
	p, _ := newMock(t)

	var wg sync.WaitGroup
	recorders := make([]*recorder, 20)
	for i := range recorders {
		recorders[i] = &recorder{}
		wg.Add(1)
		go func(r *recorder) {
			defer wg.Done()
			p.Subscribe(r.callback)
		}(recorders[i])
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = p.SignIn(ctx, DemoEmail, DemoPassword)
	}()
	wg.Wait()

	want := p.Current()
	for _, r := range recorders {
		got := r.sessions()
		require.NotEmpty(t, got)
		assert.Equal(t, want, got[len(got)-1])
	}
}

func TestNewSelectsVariant(t *testing.T) {
	ctx := context.Background()
	store := sessionstore.NewMemoryStore()

	p, err := New(ctx, configFor("mock", ""), store, metrics.Noop{}, logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &MockProvider{}, p)

	p, err = New(ctx, configFor("remote", "http://identity.local"), store, metrics.Noop{}, logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &RemoteProvider{}, p)

	_, err = New(ctx, configFor("remote", ""), store, metrics.Noop{}, logger.Discard())
	assert.Error(t, err)
	_, err = New(ctx, configFor("saml", ""), store, metrics.Noop{}, logger.Discard())
	assert.Error(t, err)
}
