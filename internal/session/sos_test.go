package session

import (
	"fmt"
	"testing"
	"time"

	"drivesafe-alarm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepSOSCountdown 手动推进 SOS 倒计时 n 秒
func stepSOSCountdown(s *Session, n int) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.stepSOS(gen)
	}
}

func waitPhase(t *testing.T, s *Session, phase models.SOSPhase) {
	require.Eventually(t, func() bool {
		return s.SOSState().Phase == phase
	}, time.Second, 10*time.Millisecond, "expected phase %s", phase)
}

func TestSOS_TriggerRequiresMonitoring(t *testing.T) {
	s := newTestSession(t, &fakeNotifier{}, Events{}, Options{})
	s.StopMonitoring()

	err := s.TriggerSOS()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring not active")
}

func TestSOS_TriggerStartsCountdown(t *testing.T) {
	s := newTestSession(t, &fakeNotifier{}, Events{}, Options{})

	require.NoError(t, s.TriggerSOS())

	state := s.SOSState()
	assert.Equal(t, models.SOSCountingDown, state.Phase)
	assert.Equal(t, 10, state.SecondsRemaining)

	// 已激活时重复触发被拒绝
	err := s.TriggerSOS()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sos already active")
}

func TestSOS_CancelOnlyDuringCountdown(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestSession(t, notifier, Events{}, Options{})

	// idle 状态不可取消
	assert.Error(t, s.CancelSOS())

	require.NoError(t, s.TriggerSOS())
	require.NoError(t, s.CancelSOS())
	assert.Equal(t, models.SOSIdle, s.SOSState().Phase)
	// 取消即未派发
	assert.Equal(t, 0, notifier.callCount())

	// sent 状态不可取消
	require.NoError(t, s.TriggerSOS())
	require.NoError(t, s.SendNow())
	waitPhase(t, s, models.SOSSent)
	assert.Error(t, s.CancelSOS())
}

func TestSOS_CountdownReachesZeroThenDispatches(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestSession(t, notifier, Events{}, Options{SOSCountdownSec: 3})

	s.SetLocation(models.Location{Lat: 31.23, Lng: 121.47})
	s.SetEmergencyContacts([]models.EmergencyContact{
		{Name: "Alex", Phone: "110", IsPrimary: true},
	})

	require.NoError(t, s.TriggerSOS())

	stepSOSCountdown(s, 2)
	state := s.SOSState()
	assert.Equal(t, models.SOSCountingDown, state.Phase)
	assert.Equal(t, 1, state.SecondsRemaining)

	// 归零后进入派发并最终送达
	stepSOSCountdown(s, 1)
	waitPhase(t, s, models.SOSSent)
	assert.Equal(t, 1, notifier.callCount())
}

func TestSOS_SendNowSkipsCountdown(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestSession(t, notifier, Events{}, Options{})

	require.NoError(t, s.TriggerSOS())
	require.NoError(t, s.SendNow())

	waitPhase(t, s, models.SOSSent)
	assert.Equal(t, 1, notifier.callCount())

	// sent 状态不可再次 SendNow
	assert.Error(t, s.SendNow())
}

func TestSOS_DispatchFailureThenRetry(t *testing.T) {
	notifier := &fakeNotifier{}
	notifier.setErr(fmt.Errorf("sms gateway unreachable"))
	s := newTestSession(t, notifier, Events{}, Options{})

	require.NoError(t, s.TriggerSOS())
	require.NoError(t, s.SendNow())
	waitPhase(t, s, models.SOSFailed)

	// failed 状态允许经 Send Now 重试
	notifier.setErr(nil)
	require.NoError(t, s.SendNow())
	waitPhase(t, s, models.SOSSent)
	assert.Equal(t, 2, notifier.callCount())
}

func TestSOS_CloseReturnsToIdle(t *testing.T) {
	s := newTestSession(t, &fakeNotifier{}, Events{}, Options{})

	// idle 状态不可关闭
	assert.Error(t, s.CloseSOS())

	require.NoError(t, s.TriggerSOS())
	require.NoError(t, s.SendNow())
	waitPhase(t, s, models.SOSSent)

	require.NoError(t, s.CloseSOS())
	assert.Equal(t, models.SOSIdle, s.SOSState().Phase)

	// 关闭后可重新触发
	require.NoError(t, s.TriggerSOS())
	assert.Equal(t, models.SOSCountingDown, s.SOSState().Phase)
}

func TestSOS_StateChangeEvents(t *testing.T) {
	var phases []models.SOSPhase
	events := Events{
		OnSOSStateChanged: func(state models.SOSState) {
			phases = append(phases, state.Phase)
		},
	}
	s := newTestSession(t, &fakeNotifier{}, events, Options{SOSCountdownSec: 2})

	require.NoError(t, s.TriggerSOS())
	stepSOSCountdown(s, 1)
	require.NoError(t, s.CancelSOS())

	assert.Equal(t, []models.SOSPhase{
		models.SOSCountingDown,
		models.SOSCountingDown,
		models.SOSIdle,
	}, phases)
}

func TestSOS_StaleDispatchResultDiscarded(t *testing.T) {
	notifier := &fakeNotifier{block: make(chan struct{})}
	s := newTestSession(t, notifier, Events{}, Options{})

	require.NoError(t, s.TriggerSOS())
	require.NoError(t, s.SendNow())
	assert.Equal(t, models.SOSSending, s.SOSState().Phase)

	// 派发尚未完成时会话被重置
	s.StopMonitoring()
	assert.Equal(t, models.SOSIdle, s.SOSState().Phase)

	// 过期派发结果不得覆盖重置后的状态
	close(notifier.block)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, models.SOSIdle, s.SOSState().Phase)
}

func TestSOS_StaleGenerationStepIgnored(t *testing.T) {
	s := newTestSession(t, &fakeNotifier{}, Events{}, Options{})

	require.NoError(t, s.TriggerSOS())

	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	s.stepSOS(gen - 1)
	assert.Equal(t, 10, s.SOSState().SecondsRemaining)
}
