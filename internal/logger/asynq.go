package logger

import "fmt"

// AsynqLogger adapts Logger to the asynq.Logger interface.
type AsynqLogger struct {
	L *Logger
}

func (a AsynqLogger) Debug(args ...interface{}) { a.L.Debug(fmt.Sprint(args...)) }
func (a AsynqLogger) Info(args ...interface{})  { a.L.Info(fmt.Sprint(args...)) }
func (a AsynqLogger) Warn(args ...interface{})  { a.L.Warn(fmt.Sprint(args...)) }
func (a AsynqLogger) Error(args ...interface{}) { a.L.Error(fmt.Sprint(args...)) }
func (a AsynqLogger) Fatal(args ...interface{}) { a.L.Fatal(fmt.Sprint(args...)) }
