package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorWarning = color.New(color.FgYellow).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
)

// Output 提供结构化的终端输出
type Output struct {
	noColor bool
}

// NewOutput 创建输出工具
func NewOutput(noColor bool) *Output {
	color.NoColor = noColor
	return &Output{noColor: noColor}
}

// Success 输出成功消息
func (o *Output) Success(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", colorSuccess("✅"), fmt.Sprintf(format, args...))
}

// Error 输出错误消息
func (o *Output) Error(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", colorError("❌"), fmt.Sprintf(format, args...))
}

// Warning 输出警告消息
func (o *Output) Warning(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", colorWarning("⚠️"), fmt.Sprintf(format, args...))
}

// Info 输出信息消息
func (o *Output) Info(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", colorInfo("ℹ️"), fmt.Sprintf(format, args...))
}

// Header 输出标题
func (o *Output) Header(title string) {
	fmt.Println()
	fmt.Println(colorBold(title))
	fmt.Println(strings.Repeat("━", len(title)))
	fmt.Println()
}
