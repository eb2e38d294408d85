package service

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"VideoRitz-server/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func klingPollServer(t *testing.T, body string) func() {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	prevURL := klingBaseURL
	prevCfg := config.AppConfig
	klingBaseURL = srv.URL
	config.AppConfig = &config.Config{}
	config.AppConfig.Providers.Kling.AccessKey = "ak"
	config.AppConfig.Providers.Kling.SecretKey = "sk"
	return func() {
		srv.Close()
		klingBaseURL = prevURL
		config.AppConfig = prevCfg
	}
}

func TestKlingPoll_Succeed(t *testing.T) {
	cleanup := klingPollServer(t, `{"code":0,"data":{"task_status":"succeed","task_result":{"videos":[{"url":"https://cdn/v.mp4"}]}}}`)
	defer cleanup()

	res, err := (&KlingAnimator{}).Poll("task-1")
	require.NoError(t, err)
	assert.Equal(t, AnimateStatusDone, res.Status)
	assert.Equal(t, "https://cdn/v.mp4", res.VideoURL)
}

func TestKlingPoll_SucceedWithoutURLIsError(t *testing.T) {
	// 终态成功却缺结果地址：必须立刻报错，而不是当 running 耗完轮询预算
	cleanup := klingPollServer(t, `{"code":0,"data":{"task_status":"succeed","task_result":{"videos":[]}}}`)
	defer cleanup()

	_, err := (&KlingAnimator{}).Poll("task-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no video url")
}

func TestKlingPoll_FailedAndRunning(t *testing.T) {
	cleanup := klingPollServer(t, `{"code":0,"data":{"task_status":"failed"}}`)
	res, err := (&KlingAnimator{}).Poll("task-1")
	cleanup()
	require.NoError(t, err)
	assert.Equal(t, AnimateStatusFailed, res.Status)

	cleanup = klingPollServer(t, `{"code":0,"data":{"task_status":"processing"}}`)
	defer cleanup()
	res, err = (&KlingAnimator{}).Poll("task-1")
	require.NoError(t, err)
	assert.Equal(t, AnimateStatusRunning, res.Status)
}
