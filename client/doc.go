// Package client is the high-level entry point: it submits tasks to the
// remote agent service and tracks their completion through polling,
// webhooks, or both at once.
//
//	cfg, _ := client.LoadConfig()
//	c, _ := client.New(cfg)
//	defer c.Close()
//
//	task, _ := c.CreateTask(ctx, client.TaskRequest{
//		Prompt: "Summarize the attached report",
//		Attachments: []files.Source{{Data: report, Filename: "q3.pdf"}},
//	}, nil)
//
//	res, err := c.WaitForCompletion(ctx, task.ID)
//
// WaitForCompletion returns a COMPLETION_TIMEOUT error when MaxWait
// elapses, but the task stays tracked: a webhook delivery arriving later
// still resolves the handle, and the caller may wait again.
//
// Configuration is read from taskwatch.toml (working directory, then
// ~/.config/taskwatch/) with environment variables filling any gaps;
// MANUS_API_KEY alone is enough to get started.
package client
