package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure.
type Kind string

const (
	// KindTransport means no response was received.
	KindTransport Kind = "transport"
	// KindServer means the backend answered with a non-2xx status or
	// success:false.
	KindServer Kind = "server"
	// KindInvalid means a 2xx response did not have the expected shape.
	KindInvalid Kind = "invalid"
)

// Error is returned by every Client call. Message is always user-visible:
// the backend's own message when it sent one, otherwise a generic fallback
// for the call.
type Error struct {
	Op      string
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message extracts the user-visible message from err, or fallback when err
// is not a gateway error.
func Message(err error, fallback string) string {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	return fallback
}

// Fallback messages, one per call.
const (
	fallbackChat         = "채팅 API 요청 중 서버 오류가 발생했습니다."
	fallbackPersonalized = "맞춤 정책 검색 중 오류가 발생했습니다."
	fallbackRecent       = "새로 나온 정책 조회 중 알 수 없는 서버 오류가 발생했습니다."
	fallbackDetailFormat = "정책 상세 정보(ID: %s) 요청 중 알 수 없는 서버 오류가 발생했습니다."
	fallbackSync         = "정책 동기화 중 서버 오류가 발생했습니다."
	fallbackSignup       = "회원가입 API 요청 중 서버 오류가 발생했습니다."
	fallbackLogin        = "로그인 API 요청 중 서버 오류가 발생했습니다."
)
