package lsf

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/lsfq/pkg/runner"
)

// lsfStdoutSuffix names the file the batch system writes job output to.
const lsfStdoutSuffix = ".LSF-stdout"

var ackPattern = regexp.MustCompile(`<(\d+)>`)

// shellStrategy drives the batch system through its command line tools,
// either on this host or through a remote shell.
type shellStrategy struct {
	runner  runner.Runner
	tempDir string
	timeout time.Duration
	logger  *zap.Logger
}

func newShellStrategy(r runner.Runner, tempDir string, timeout time.Duration, logger *zap.Logger) *shellStrategy {
	return &shellStrategy{runner: r, tempDir: tempDir, timeout: timeout, logger: logger}
}

func (s *shellStrategy) name() string { return "shell" }

// SubmitArgv builds the submission command for req. The resource request is
// wrapped in double quotes when quote is true, for commands that pass through
// a remote shell.
func SubmitArgv(opts OptionsSnapshot, req *SubmitRequest, quote bool) []string {
	argv := []string{
		opts.orDefault(OptionSubmitCmd),
		"-o", filepath.Join(req.WorkDir, req.JobName+lsfStdoutSuffix),
	}
	if q := opts.get(OptionQueue); q != "" {
		argv = append(argv, "-q", q)
	}
	argv = append(argv, "-J", req.JobName, "-n", strconv.Itoa(req.CPUCount))
	if res := opts.get(OptionResourceRequest); res != "" {
		if quote {
			res = `"` + res + `"`
		}
		argv = append(argv, "-R", res)
	}
	if sh := opts.get(OptionLoginShell); sh != "" {
		argv = append(argv, "-L", sh)
	}
	argv = append(argv, req.Command)
	return append(argv, req.Args...)
}

// ParseJobID extracts the first <digits> token from a submission
// acknowledgement.
func ParseJobID(ack string) (string, bool) {
	m := ackPattern.FindStringSubmatch(ack)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (s *shellStrategy) submit(ctx context.Context, opts OptionsSnapshot, req *SubmitRequest) (string, error) {
	remote := opts.Mode() == ModeRemote
	argv := SubmitArgv(opts, req, remote)
	cmdline := strings.Join(argv, " ")

	output, code, err := s.run(ctx, opts, argv)
	id, found := ParseJobID(output)
	if err != nil {
		return id, &Error{Op: "submit", JobID: id, Command: cmdline, ExitCode: code, Output: runner.StderrOf(err), Kind: ErrSubmission, Err: err}
	}
	if !found {
		return "", &Error{Op: "submit", Command: cmdline, Output: output, Kind: ErrSubmission, Err: ErrNoJobID}
	}

	s.logger.Debug("Job submitted",
		zap.String("job_id", id),
		zap.String("job_name", req.JobName),
		zap.String("mode", string(opts.Mode())))
	return id, nil
}

func (s *shellStrategy) list(ctx context.Context, opts OptionsSnapshot, _ []string) ([]ListingEntry, error) {
	argv := []string{opts.orDefault(OptionStatusCmd), "-a"}
	output, code, err := s.run(ctx, opts, argv)
	if err != nil {
		stderr := runner.StderrOf(err)
		if noJobsFound(stderr) {
			return nil, nil
		}
		return nil, &Error{Op: "refresh", Command: strings.Join(argv, " "), ExitCode: code, Output: stderr, Kind: ErrTransientQuery, Err: err}
	}
	return ParseListing(output), nil
}

// ParseListing parses bulk status output of the form
// "JOBID USER STAT ...". Rows with fewer than three columns or a
// non-numeric id, including the header, are ignored.
func ParseListing(output string) []ListingEntry {
	var entries []ListingEntry
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		if _, err := strconv.ParseUint(fields[0], 10, 64); err != nil {
			continue
		}
		entries = append(entries, ListingEntry{JobID: fields[0], User: fields[1], StatusWord: fields[2]})
	}
	return entries
}

func (s *shellStrategy) kill(ctx context.Context, opts OptionsSnapshot, externalID string) error {
	argv := []string{opts.orDefault(OptionKillCmd), externalID}
	output, code, err := s.run(ctx, opts, argv)
	if err != nil {
		stderr := runner.StderrOf(err)
		if alreadyFinished(stderr) || alreadyFinished(output) {
			s.logger.Debug("Kill target already finished", zap.String("job_id", externalID))
			return nil
		}
		return &Error{Op: "kill", JobID: externalID, Command: strings.Join(argv, " "), ExitCode: code, Output: stderr, Kind: ErrKill, Err: err}
	}
	return nil
}

func (s *shellStrategy) details(ctx context.Context, opts OptionsSnapshot, externalID string) (*JobDetails, error) {
	argv := []string{opts.orDefault(OptionStatusCmd), "-noheader", "-o", "exec_host", externalID}
	output, code, err := s.run(ctx, opts, argv)
	if err != nil {
		stderr := runner.StderrOf(err)
		if strings.Contains(stderr, "is not found") {
			return nil, fmt.Errorf("details %s: %w", externalID, ErrJobNotFound)
		}
		return nil, &Error{Op: "details", JobID: externalID, Command: strings.Join(argv, " "), ExitCode: code, Output: stderr, Kind: ErrTransientQuery, Err: err}
	}
	if strings.Contains(output, "is not found") {
		return nil, fmt.Errorf("details %s: %w", externalID, ErrJobNotFound)
	}
	return &JobDetails{JobID: externalID, ExecutionHosts: ParseExecHosts(output)}, nil
}

// ParseExecHosts parses an exec_host column such as "4*hostA:hostB".
// A lone "-" means the job has not been placed yet.
func ParseExecHosts(output string) []string {
	field := strings.TrimSpace(output)
	if field == "" || field == "-" {
		return nil
	}
	var hosts []string
	for _, part := range strings.Split(field, ":") {
		part = strings.TrimSpace(part)
		if i := strings.IndexByte(part, '*'); i >= 0 {
			part = part[i+1:]
		}
		if part != "" && part != "-" {
			hosts = append(hosts, part)
		}
	}
	return hosts
}

// run executes argv locally or through the remote shell and returns the
// captured standard output.
func (s *shellStrategy) run(ctx context.Context, opts OptionsSnapshot, argv []string) (string, int, error) {
	capture, err := runner.TempFile(s.tempDir, "lsfq-*.out")
	if err != nil {
		return "", -1, err
	}
	defer func() { _ = os.Remove(capture) }()

	binary, args := argv[0], argv[1:]
	if opts.Mode() == ModeRemote {
		binary = opts.orDefault(OptionRemoteShellBinary)
		args = []string{opts.get(OptionRemoteServer), strings.Join(argv, " ")}
	}

	code, runErr := s.runner.Run(ctx, binary, args, capture, s.timeout)
	data, readErr := os.ReadFile(capture)
	if readErr != nil && runErr == nil {
		return "", code, fmt.Errorf("read command output: %w", readErr)
	}
	return string(data), code, runErr
}

func noJobsFound(stderr string) bool {
	return strings.Contains(stderr, "No job found") || strings.Contains(stderr, "No unfinished job found")
}

func alreadyFinished(text string) bool {
	return strings.Contains(text, "already finished")
}
