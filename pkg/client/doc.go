/*
Package client is a Go client for the admin façade (pkg/api): submit
and cancel tasks, inspect status, and manage node admission from code
or from cmd/taskmasterctl.

# Usage

	c, err := client.NewClient("127.0.0.1:7300", "taskmaster-admin")
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	id, err := c.QueueTask("render_frame", map[string]interface{}{"frame": 42})
	if err != nil {
		log.Fatal(err)
	}

	statuses, err := c.TaskStatuses()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("task %d: %+v\n", id, statuses[id])

# Thread safety

A Client wraps a single pkg/rpc.Session. Session.Call is safe for
concurrent use from multiple goroutines; create one Client per admin
connection rather than per call.

# See also

  - pkg/api for the server-side admin façade this client talks to.
  - cmd/taskmasterctl for a CLI built on this package.
*/
package client
