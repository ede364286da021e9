package service

import (
	"errors"
	"fmt"
)

// 错误类别，配合 errors.Is 使用
var (
	ErrUnknownReference   = errors.New("引用不存在")
	ErrInvalidCardinality = errors.New("数量不合法")
	ErrOutOfRange         = errors.New("取值越界")
	ErrDuplicateAffix     = errors.New("词条重复")
	ErrAffixSlotsFull     = errors.New("副词条已满")
	ErrNoCandidates       = errors.New("没有可用词条")
	ErrBudgetExhausted    = errors.New("强化次数已用完")
	ErrAlreadyMinimum     = errors.New("已经是最低等级")
	ErrNoUpgradeHistory   = errors.New("没有强化记录")
	ErrNotFound           = errors.New("不存在")
	ErrMismatch           = errors.New("不属于该驱动盘")
	ErrNoData             = errors.New("暂无数据")
	ErrInvalidMode        = errors.New("强化类型无效")
	ErrInvalidInput       = errors.New("参数错误")
	ErrInternal           = errors.New("内部错误")
)

// Error 业务错误：Kind 为上面的类别，Msg 为面向用户的提示
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func internalError(msg string, err error) *Error {
	return &Error{Kind: ErrInternal, Msg: msg, Err: err}
}

// wrapInternal 已经是业务错误的原样返回，其余按内部错误包装
func wrapInternal(msg string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return internalError(msg, err)
}

// Message 返回面向用户的提示
func Message(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Msg
	}
	return ErrInternal.Error()
}

// IsValidation 是否为调用方输入导致的错误
func IsValidation(err error) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Kind {
	case ErrNotFound, ErrInternal:
		return false
	}
	return true
}

func errLedgerDrift(pieceID int64) error {
	return fmt.Errorf("驱动盘 %d 强化记录与总强化次数不一致", pieceID)
}
