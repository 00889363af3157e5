package backup

import "fmt"

// Step names a stage of the backup.
type Step string

const (
	StepTools      Step = "tools"
	StepAppPath    Step = "app-path"
	StepOutputPath Step = "output-path"
	StepPack       Step = "pack"
	StepCert       Step = "certificate"
	StepConvert    Step = "convert"
	StepSign       Step = "sign"
)

// ExitCode is the process exit code reported for a failure in step.
func (s Step) ExitCode() int {
	switch s {
	case StepTools:
		return 2
	case StepAppPath:
		return 3
	case StepOutputPath:
		return 4
	case StepPack:
		return 5
	case StepCert:
		return 6
	case StepConvert:
		return 7
	case StepSign:
		return 8
	default:
		return 99
	}
}

// StepError is a failed backup stage.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step Step, format string, args ...any) error {
	return &StepError{Step: step, Err: fmt.Errorf(format, args...)}
}
