// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import "fmt"

// InvalidParamError 参数集或片头中的语法元素超出合法范围
type InvalidParamError struct {
	Name  string
	Value int
}

func (e *InvalidParamError) Error() string {
	return fmt.Sprintf("hevc: invalid %s = %d", e.Name, e.Value)
}

func errInvalidParam(name string, v int) error {
	return &InvalidParamError{Name: name, Value: v}
}
