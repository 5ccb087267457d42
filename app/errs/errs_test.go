package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := map[string]struct {
		err  error
		want Kind
	}{
		"validation": {err: Validation("参数错误"), want: KindValidation},
		"timeout":    {err: Timeout("等待超时", nil), want: KindTimeout},
		"external":   {err: External("接口失败", errors.New("503")), want: KindExternal},
		"not found":  {err: NotFound("任务不存在"), want: KindNotFound},
		"wrapped":    {err: fmt.Errorf("外层: %w", Timeout("里层", nil)), want: KindTimeout},
		"plain":      {err: errors.New("随便什么"), want: KindInternal},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("want %s, got %s", tt.want, got)
			}
		})
	}
}

func TestIsRetriable(t *testing.T) {
	if !IsRetriable(Timeout("超时", nil)) {
		t.Fatalf("timeout should be retriable")
	}
	if !IsRetriable(External("外部失败", nil)) {
		t.Fatalf("external should be retriable")
	}
	if IsRetriable(Validation("参数错误")) {
		t.Fatalf("validation must not be retriable")
	}
	if IsRetriable(errors.New("unknown")) {
		t.Fatalf("plain errors must not be retriable")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindTimeout, http.StatusGatewayTimeout},
		{KindExternal, http.StatusBadGateway},
		{KindConfiguration, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.kind); got != tt.want {
			t.Fatalf("kind %s: want %d, got %d", tt.kind, tt.want, got)
		}
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("底层错误")
	err := E(KindExternal, "调用失败", inner)

	if !errors.Is(err, inner) {
		t.Fatalf("errors.Is should find the wrapped error")
	}
	if err.Error() != "调用失败: 底层错误" {
		t.Fatalf("unexpected message: %s", err.Error())
	}

	bare := Validation("参数错误")
	if bare.Error() != "参数错误" {
		t.Fatalf("unexpected message: %s", bare.Error())
	}
}
