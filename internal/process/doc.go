// Package process supervises a long-running child process.
//
// It is used to run knxd when evbridge manages the daemon itself. The
// child runs in its own process group; it is restarted after a delay when
// it exits unexpectedly, and stopped with SIGTERM followed by a hard kill
// after a grace period.
//
// Example usage:
//
//	sup := process.New(process.Config{
//	    Name:   "knxd",
//	    Binary: "/usr/bin/knxd",
//	    Args:   []string{"-e", "0.0.1", "-E", "0.0.2:8", "-i6720", "-b", "ipt:192.168.1.10:3671"},
//	}, logger)
//
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package process
