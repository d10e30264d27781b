package container

import (
	"fmt"
	"strings"
)

// InfraError represents a fatal container/daemon/disk failure. It carries
// remediation steps the orchestrator's final report can surface verbatim.
type InfraError struct {
	Op        string
	Err       error
	Message   string
	NextSteps []string
}

func (e *InfraError) Error() string { return e.Message }
func (e *InfraError) Unwrap() error { return e.Err }

// FormatUserError renders the error plus remediation steps for the
// orchestrator's terminal failure report.
func (e *InfraError) FormatUserError() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", e.Message))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf("  Details: %s\n", e.Err.Error()))
	}
	if len(e.NextSteps) > 0 {
		sb.WriteString("\nNext Steps:\n")
		for i, step := range e.NextSteps {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, step))
		}
	}
	return sb.String()
}

func errDaemonUnreachable(err error) *InfraError {
	return &InfraError{
		Op:      "connect",
		Err:     err,
		Message: "cannot connect to the container daemon",
		NextSteps: []string{
			"ensure the container runtime is installed and running",
			"check that the daemon socket is reachable",
		},
	}
}

func errImageBuildFailed(err error) *InfraError {
	return &InfraError{
		Op:      "build",
		Err:     err,
		Message: "failed to build the image",
		NextSteps: []string{
			"check the Dockerfile syntax",
			"verify all referenced files exist in the build context",
		},
	}
}

func errContainerNotFound(name string) *InfraError {
	return &InfraError{
		Op:      "find",
		Message: fmt.Sprintf("container %q not found", name),
		NextSteps: []string{
			"the adapter must Start before Exec/PutFiles/Restart can succeed",
		},
	}
}

func errContainerStartFailed(name string, err error) *InfraError {
	return &InfraError{
		Op:      "start",
		Err:     err,
		Message: fmt.Sprintf("failed to start container %q", name),
	}
}

func errCopyFailed(op, name string, err error) *InfraError {
	return &InfraError{
		Op:      op,
		Err:     err,
		Message: fmt.Sprintf("failed to %s for container %q", op, name),
	}
}
