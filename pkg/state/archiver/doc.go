// Package archiver moves audit entries past their retention window out of
// the live store into timestamped JSON archive files. Export always happens
// before deletion, so a failed export never loses entries.
package archiver
