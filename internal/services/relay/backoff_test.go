package relay

import (
	"testing"
	"time"

	relaymocks "github.com/BearBump/WashTrack/internal/services/relay/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type BackoffSuite struct {
	suite.Suite
}

func (s *BackoffSuite) TestDelay_DoublesUpToMax() {
	b := NewBackoff(BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Jitter: 0}, nil)
	s.Equal(1*time.Second, b.Delay(1))
	s.Equal(2*time.Second, b.Delay(2))
	s.Equal(4*time.Second, b.Delay(3))
	s.Equal(5*time.Second, b.Delay(4))
	s.Equal(5*time.Second, b.Delay(100))
}

func (s *BackoffSuite) TestDelay_JitterUsesRand() {
	m := &relaymocks.Rand{}
	m.On("Int63n", int64(200*time.Millisecond)+1).Return(int64(100 * time.Millisecond)).Once()

	b := NewBackoff(BackoffConfig{Initial: time.Second, Max: time.Minute, Jitter: 0.2}, m)
	s.Equal(900*time.Millisecond, b.Delay(1))
	m.AssertExpectations(s.T())
}

func (s *BackoffSuite) TestDefaults() {
	m := &relaymocks.Rand{}
	m.On("Int63n", mock.Anything).Return(int64(0)).Maybe()

	b := NewBackoff(BackoffConfig{Jitter: 5}, m)
	s.Equal(DefaultBackoffConfig(), b.cfg)
	s.Equal(500*time.Millisecond, b.Delay(0))
}

func TestBackoffSuite(t *testing.T) {
	suite.Run(t, new(BackoffSuite))
}
