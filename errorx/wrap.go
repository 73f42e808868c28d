package errorx

import "errors"

// From 提取 *Error
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode err 链上是否有指定 code
func HasCode(err error, code CodeEntry) bool {
	e, ok := From(err)
	return ok && e.Code.Code == code.Code
}

func IsSys(err error) bool {
	e, ok := From(err)
	return ok && e.Type.Code == ErrTypeSys.Code
}

// ServiceOf 出错方，非 *Error 返回 ServiceDefault
func ServiceOf(err error) CodeEntry {
	e, ok := From(err)
	if !ok {
		return ServiceDefault
	}
	return e.Service
}
