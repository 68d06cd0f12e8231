package logger

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// flushTimeout はシャットダウン時に未送信のイベントを待つ上限時間。
const flushTimeout = 2 * time.Second

// InitSentry はdsnが指定されている場合にSentryを初期化し、終了時に呼ぶflush関数を返す。
// dsnが空の場合は何もしない。
func InitSentry(dsn, environment string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	}); err != nil {
		return func() {}, fmt.Errorf("sentry init failed: %w", err)
	}

	return func() { sentry.Flush(flushTimeout) }, nil
}

// CaptureError は内部エラーをSentryに送信する。
// Sentryが初期化されていない場合は何もしない。
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// CapturePanic は回復したpanicの値をSentryに送信する。
func CapturePanic(recovered any) {
	sentry.CurrentHub().Recover(recovered)
}
