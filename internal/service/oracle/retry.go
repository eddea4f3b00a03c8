package oracle

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
)

// ErrTransient 可重试的临时错误
var ErrTransient = errors.New("transient oracle error")

// Policy 重试策略
type Policy struct {
	MaxRetries int           // 首次调用之后的最大重试次数
	Backoff    time.Duration // 线性退避基数：第 n 次重试前等待 n*Backoff
	Timeout    time.Duration // 单次调用超时，0 表示不限
}

// DefaultPolicy 默认重试策略
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 10, Backoff: 500 * time.Millisecond, Timeout: 60 * time.Second}
}

// Retrier 按策略重试 oracle 调用
type Retrier struct {
	policy Policy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier 创建重试器
func NewRetrier(policy Policy, logger *zap.Logger) *Retrier {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{policy: policy, logger: logger, sleep: sleepContext}
}

// Do 执行 fn。格式错误直接返回；临时错误重试到上限后返回 *model.OracleFailure；
// 其它错误不重试，同样包装为 *model.OracleFailure。
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	for {
		attempts++
		err := r.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, model.ErrMalformedCandidate) {
			return err
		}
		if ctx.Err() != nil || !IsTransient(err) || attempts > r.policy.MaxRetries {
			r.logger.Warn("oracle call failed",
				zap.String("op", op),
				zap.Int("attempts", attempts),
				zap.Error(err))
			return &model.OracleFailure{Attempts: attempts, Err: err}
		}

		wait := time.Duration(attempts) * r.policy.Backoff
		r.logger.Debug("retrying oracle call",
			zap.String("op", op),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
		if err := r.sleep(ctx, wait); err != nil {
			return &model.OracleFailure{Attempts: attempts, Err: err}
		}
	}
}

func (r *Retrier) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.policy.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
	defer cancel()
	return fn(callCtx)
}

// IsTransient 网络错误、超时、429 与 5xx 视为可重试
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return retryableCode(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return retryableCode(apiErrPtr.Code)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableCode(code int) bool {
	return code == 429 || code >= 500
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryingInterpreter 带重试的 Interpreter
type RetryingInterpreter struct {
	Next    Interpreter
	Retrier *Retrier
}

func (r *RetryingInterpreter) Interpret(ctx context.Context, prompt string) (*Candidate, error) {
	var out *Candidate
	err := r.Retrier.Do(ctx, "interpret", func(ctx context.Context) error {
		c, err := r.Next.Interpret(ctx, prompt)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// RetryingAnswerer 带重试的 Answerer
type RetryingAnswerer struct {
	Next    Answerer
	Retrier *Retrier
}

func (r *RetryingAnswerer) Answer(ctx context.Context, system, prompt string) (string, error) {
	var out string
	err := r.Retrier.Do(ctx, "answer", func(ctx context.Context) error {
		a, err := r.Next.Answer(ctx, system, prompt)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}
