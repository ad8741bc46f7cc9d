package session

import (
	"sync"
	"testing"

	"drivesafe-alarm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// displayRecorder 记录展示/隐藏事件
type displayRecorder struct {
	mu     sync.Mutex
	shown  []models.Alert
	loops  []bool
	hidden []models.Alert
}

func (r *displayRecorder) events() Events {
	return Events{
		OnAlertShown: func(alert models.Alert, loopSound bool) {
			r.mu.Lock()
			r.shown = append(r.shown, alert)
			r.loops = append(r.loops, loopSound)
			r.mu.Unlock()
		},
		OnAlertHidden: func(alert models.Alert) {
			r.mu.Lock()
			r.hidden = append(r.hidden, alert)
			r.mu.Unlock()
		},
	}
}

func (r *displayRecorder) shownIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.shown))
	for i, alert := range r.shown {
		ids[i] = alert.ID
	}
	return ids
}

// stepShownCountdown 手动推进展示倒计时 n 秒
func stepShownCountdown(s *Session, n int) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.stepDisplay(gen)
	}
}

func TestDisplay_HighAlertShownImmediately(t *testing.T) {
	rec := &displayRecorder{}
	s := newTestSession(t, &fakeNotifier{}, rec.events(), Options{})

	pushAlert(s, makeAlert("h1", models.RiskHigh))

	shown, remaining := s.ShownAlert()
	require.NotNil(t, shown)
	assert.Equal(t, "h1", shown.ID)
	assert.Equal(t, 10, remaining)
	assert.Equal(t, []string{"h1"}, rec.shownIDs())
	// high 级别不循环提示音
	assert.Equal(t, []bool{false}, rec.loops)
}

func TestDisplay_ModerateNeverShown(t *testing.T) {
	s := newTestSession(t, &fakeNotifier{}, Events{}, Options{})

	pushAlert(s, makeAlert("m1", models.RiskModerate))

	shown, _ := s.ShownAlert()
	assert.Nil(t, shown)
}

func TestDisplay_CriticalLoopsSound(t *testing.T) {
	rec := &displayRecorder{}
	s := newTestSession(t, &fakeNotifier{}, rec.events(), Options{})

	pushAlert(s, makeAlert("c1", models.RiskCritical))

	assert.Equal(t, []bool{true}, rec.loops)
}

func TestDisplay_OneAtATime_ArrivalOrder(t *testing.T) {
	rec := &displayRecorder{}
	s := newTestSession(t, &fakeNotifier{}, rec.events(), Options{})

	pushAlert(s, makeAlert("h1", models.RiskHigh))
	pushAlert(s, makeAlert("h2", models.RiskHigh))
	pushAlert(s, makeAlert("c3", models.RiskCritical))

	// 同一时刻只展示一条：后到的保持排队
	shown, _ := s.ShownAlert()
	require.NotNil(t, shown)
	assert.Equal(t, "h1", shown.ID)
	assert.Equal(t, []string{"h1"}, rec.shownIDs())

	// 关闭当前后按到达顺序选取下一条，critical 不插队
	s.DismissShownAlert()
	shown, _ = s.ShownAlert()
	require.NotNil(t, shown)
	assert.Equal(t, "h2", shown.ID)

	s.DismissShownAlert()
	shown, _ = s.ShownAlert()
	require.NotNil(t, shown)
	assert.Equal(t, "c3", shown.ID)

	assert.Equal(t, []string{"h1", "h2", "c3"}, rec.shownIDs())
}

func TestDisplay_AutoAckAfterCountdown(t *testing.T) {
	rec := &displayRecorder{}
	s := newTestSession(t, &fakeNotifier{}, rec.events(), Options{DisplayCountdownSec: 3})

	pushAlert(s, makeAlert("h1", models.RiskHigh))

	stepShownCountdown(s, 2)
	shown, remaining := s.ShownAlert()
	require.NotNil(t, shown)
	assert.Equal(t, 1, remaining)

	// 倒计时归零：自动确认并结束展示
	stepShownCountdown(s, 1)
	shown, _ = s.ShownAlert()
	assert.Nil(t, shown)

	alerts := s.Alerts()
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Acknowledged)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.hidden, 1)
	assert.Equal(t, "h1", rec.hidden[0].ID)
	assert.True(t, rec.hidden[0].Acknowledged)
}

func TestDisplay_HiddenEventCarriesAckState(t *testing.T) {
	rec := &displayRecorder{}
	s := newTestSession(t, &fakeNotifier{}, rec.events(), Options{})

	// 用户主动关闭：隐藏事件携带已确认
	pushAlert(s, makeAlert("h1", models.RiskHigh))
	s.DismissShownAlert()

	// 经日志确认正在展示的报警：同样已确认
	pushAlert(s, makeAlert("h2", models.RiskHigh))
	require.NoError(t, s.AcknowledgeAlert("h2"))

	// 行程结束打断展示：报警从未被确认，隐藏事件不得标记确认
	pushAlert(s, makeAlert("h3", models.RiskHigh))
	s.StopMonitoring()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.hidden, 3)
	assert.Equal(t, "h1", rec.hidden[0].ID)
	assert.True(t, rec.hidden[0].Acknowledged)
	assert.Equal(t, "h2", rec.hidden[1].ID)
	assert.True(t, rec.hidden[1].Acknowledged)
	assert.Equal(t, "h3", rec.hidden[2].ID)
	assert.False(t, rec.hidden[2].Acknowledged)
}

func TestDisplay_CountdownAdvancesToNext(t *testing.T) {
	rec := &displayRecorder{}
	s := newTestSession(t, &fakeNotifier{}, rec.events(), Options{DisplayCountdownSec: 2})

	pushAlert(s, makeAlert("h1", models.RiskHigh))
	pushAlert(s, makeAlert("h2", models.RiskHigh))

	stepShownCountdown(s, 2)

	// h1 自动确认后 h2 立即接上
	shown, remaining := s.ShownAlert()
	require.NotNil(t, shown)
	assert.Equal(t, "h2", shown.ID)
	assert.Equal(t, 2, remaining)
	assert.Equal(t, []string{"h1", "h2"}, rec.shownIDs())
}

func TestDisplay_DismissAcknowledges(t *testing.T) {
	s := newTestSession(t, &fakeNotifier{}, Events{}, Options{})

	pushAlert(s, makeAlert("h1", models.RiskHigh))
	s.DismissShownAlert()

	alerts := s.Alerts()
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Acknowledged)

	// 无展示时 Dismiss 是空操作
	s.DismissShownAlert()
}

func TestDisplay_AcknowledgeShownAlertEndsDisplay(t *testing.T) {
	s := newTestSession(t, &fakeNotifier{}, Events{}, Options{})

	pushAlert(s, makeAlert("h1", models.RiskHigh))
	pushAlert(s, makeAlert("h2", models.RiskHigh))

	// 通过日志确认正在展示的报警：展示结束并接上下一条
	require.NoError(t, s.AcknowledgeAlert("h1"))

	shown, _ := s.ShownAlert()
	require.NotNil(t, shown)
	assert.Equal(t, "h2", shown.ID)
}

func TestDisplay_StaleGenerationIgnored(t *testing.T) {
	s := newTestSession(t, &fakeNotifier{}, Events{}, Options{})

	pushAlert(s, makeAlert("h1", models.RiskHigh))

	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	// 过期 generation 的步进不生效
	s.stepDisplay(gen - 1)
	_, remaining := s.ShownAlert()
	assert.Equal(t, 10, remaining)
}

func TestDisplay_AcknowledgedAlertSkippedInQueue(t *testing.T) {
	s := newTestSession(t, &fakeNotifier{}, Events{}, Options{})

	pushAlert(s, makeAlert("h1", models.RiskHigh))
	pushAlert(s, makeAlert("h2", models.RiskHigh))
	pushAlert(s, makeAlert("h3", models.RiskHigh))

	// h2 先被日志侧确认，轮到它时应跳过
	require.NoError(t, s.AcknowledgeAlert("h2"))

	s.DismissShownAlert() // 结束 h1
	shown, _ := s.ShownAlert()
	require.NotNil(t, shown)
	assert.Equal(t, "h3", shown.ID)
}
