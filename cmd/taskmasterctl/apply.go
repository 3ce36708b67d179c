package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Queue a task from a YAML manifest",
	Long: `Queue a top-level task described by a YAML manifest.

Example:
  taskmasterctl apply -f task.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(applyCmd)
}

// TaskManifest is the on-disk shape of a task submission: the task
// catalog key plus its argument map.
type TaskManifest struct {
	APIVersion string                 `yaml:"apiVersion"`
	Kind       string                 `yaml:"kind"`
	Metadata   TaskMetadata           `yaml:"metadata"`
	Spec       map[string]interface{} `yaml:"spec"`
}

type TaskMetadata struct {
	Name string `yaml:"name"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var manifest TaskManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.Kind != "Task" {
		return fmt.Errorf("unsupported manifest kind: %s", manifest.Kind)
	}

	taskKey := getString(manifest.Spec, "taskKey", "")
	if taskKey == "" {
		return fmt.Errorf("spec.taskKey is required")
	}
	taskArgs, _ := manifest.Spec["args"].(map[string]interface{})

	c, err := dial(cmd)
	if err != nil {
		return fmt.Errorf("connect to admin façade: %w", err)
	}
	defer c.Close()

	instanceID, err := c.QueueTask(taskKey, taskArgs)
	if err != nil {
		return fmt.Errorf("queue task: %w", err)
	}
	fmt.Printf("queued %s (task instance %d)\n", manifest.Metadata.Name, instanceID)
	return nil
}

func getString(m map[string]interface{}, key, defaultValue string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return defaultValue
}
