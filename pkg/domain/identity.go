package domain

// Identity describes the host and the stack resource it belongs to.
type Identity struct {
	StackName  string `json:"stack_name" yaml:"stack_name"`
	Resource   string `json:"resource" yaml:"resource"`
	Region     string `json:"region" yaml:"region"`
	InstanceID string `json:"instance_id" yaml:"instance_id"`
	CfnURL     string `json:"cfn_url,omitempty" yaml:"cfn_url,omitempty"`
}
