/*
Package svt is the core of a terminal image viewer for the Kitty graphics
protocol.

Images are decoded, resized and encoded off the main loop, placed on screen
through Unicode placeholders, and written by a single output owner so that
escape sequences never interleave.

The main pieces:

  - Worker and Prefetcher turn a Request into an encoded Payload. The worker
    keeps only the newest pending request; the prefetcher renders neighbours
    in the background and drops whole batches on Cancel.
  - Writer owns the terminal. It serialises StatusTask, TransmitTask and the
    other tasks, and once a transmission has started it always finishes:
    CancelImageTask only discards work that has not begun.
  - App ties them together. Every navigation bumps the epoch, a NavLatch
    coalesces bursts of key presses, and a RenderCache of encoded frames
    turns revisits into a plain retransmit.

Basic wiring:

	writer := svt.NewWriter(os.Stdout, nil, log.Log)
	worker := svt.NewWorker(svt.WorkerOptions{})
	defer worker.Close()

	app, err := svt.NewApp(svt.AppOptions{
	    Images:   images,
	    Config:   cfg,
	    Terminal: svt.DetectTerminal(svt.InTmux()),
	    ID:       svt.NewProtocolID(svt.DefaultIDMinComponent),
	    Output:   writer,
	    Capture:  worker,
	})
	if err != nil {
	    log.Fatal(err)
	}

	go writer.Run(ctx)
	err = app.Run(ctx, actions)

Tmux Support:

	// Force tmux framing, e.g. when $TMUX is not inherited
	svt.ForceTmux(true)

	// Every APC sequence is then wrapped for passthrough
	if !svt.EnableTmuxPassthrough() {
	    log.Warn("allow-passthrough is off")
	}
*/
package svt
