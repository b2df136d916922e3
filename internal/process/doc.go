// Package process supervises a single external subprocess.
//
// Process wraps os/exec for the browser executables the pool launches:
//   - Runs the child in its own process group so the whole tree can be signalled
//   - Graceful stop with SIGTERM and a configurable timeout
//   - Force kill of the process group if the graceful stop times out
//   - Output streaming with pluggable log parsing and an OutputHandler hook
//
// Example usage:
//
//	p := process.New("unit-1", []string{"chromium", "--headless=new"}, logger)
//	if err := p.Start(); err != nil {
//	    return err
//	}
//	defer p.Stop(ctx)
package process
