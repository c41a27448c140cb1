package launcher

// SimulationJobParams mirrors the RoboMaker CreateSimulationJob request body.
// Field names are the service's camelCase wire names.
type SimulationJobParams struct {
	ClientRequestToken      string                        `json:"clientRequestToken,omitempty"`
	OutputLocation          *OutputLocation               `json:"outputLocation,omitempty"`
	LoggingConfig           *LoggingConfig                `json:"loggingConfig,omitempty"`
	MaxJobDurationInSeconds int64                         `json:"maxJobDurationInSeconds"`
	IAMRole                 string                        `json:"iamRole"`
	FailureBehavior         string                        `json:"failureBehavior,omitempty"`
	UseDefaultApplications  *bool                         `json:"useDefaultApplications,omitempty"`
	RobotApplications       []RobotApplicationConfig      `json:"robotApplications,omitempty"`
	SimulationApplications  []SimulationApplicationConfig `json:"simulationApplications,omitempty"`
	DataSources             []DataSourceConfig            `json:"dataSources,omitempty"`
	Tags                    map[string]string             `json:"tags,omitempty"`
	VPCConfig               *VPCConfig                    `json:"vpcConfig,omitempty"`
	Compute                 *Compute                      `json:"compute,omitempty"`
}

type OutputLocation struct {
	S3Bucket string `json:"s3Bucket"`
	S3Prefix string `json:"s3Prefix,omitempty"`
}

type LoggingConfig struct {
	RecordAllRosTopics *bool `json:"recordAllRosTopics,omitempty"`
}

type VPCConfig struct {
	Subnets        []string `json:"subnets"`
	SecurityGroups []string `json:"securityGroups,omitempty"`
	AssignPublicIP *bool    `json:"assignPublicIp,omitempty"`
}

type Compute struct {
	SimulationUnitLimit *int32 `json:"simulationUnitLimit,omitempty"`
	ComputeType         string `json:"computeType,omitempty"`
	GPUUnitLimit        *int32 `json:"gpuUnitLimit,omitempty"`
}

type LaunchConfig struct {
	PackageName          string                `json:"packageName,omitempty"`
	LaunchFile           string                `json:"launchFile,omitempty"`
	EnvironmentVariables map[string]string     `json:"environmentVariables,omitempty"`
	PortForwardingConfig *PortForwardingConfig `json:"portForwardingConfig,omitempty"`
	StreamUI             bool                  `json:"streamUI,omitempty"`
	Command              []string              `json:"command,omitempty"`
}

type PortForwardingConfig struct {
	PortMappings []PortMapping `json:"portMappings,omitempty"`
}

type PortMapping struct {
	JobPort          int32 `json:"jobPort"`
	ApplicationPort  int32 `json:"applicationPort"`
	EnableOnPublicIP bool  `json:"enableOnPublicIp,omitempty"`
}

type UploadConfiguration struct {
	Name           string `json:"name"`
	Path           string `json:"path"`
	UploadBehavior string `json:"uploadBehavior"`
}

type Tool struct {
	Name                     string `json:"name"`
	Command                  string `json:"command"`
	StreamUI                 *bool  `json:"streamUI,omitempty"`
	StreamOutputToCloudWatch *bool  `json:"streamOutputToCloudWatch,omitempty"`
	ExitBehavior             string `json:"exitBehavior,omitempty"`
}

type WorldConfig struct {
	World string `json:"world"`
}

type DataSourceConfig struct {
	Name        string   `json:"name"`
	S3Bucket    string   `json:"s3Bucket"`
	S3Keys      []string `json:"s3Keys"`
	Type        string   `json:"type,omitempty"`
	Destination string   `json:"destination,omitempty"`
}

// RobotApplicationConfig is one robot application launched inside a simulation job.
type RobotApplicationConfig struct {
	Application                    string                `json:"application"`
	ApplicationVersion             string                `json:"applicationVersion,omitempty"`
	LaunchConfig                   LaunchConfig          `json:"launchConfig"`
	UploadConfigurations           []UploadConfiguration `json:"uploadConfigurations,omitempty"`
	UseDefaultUploadConfigurations *bool                 `json:"useDefaultUploadConfigurations,omitempty"`
	Tools                          []Tool                `json:"tools,omitempty"`
	UseDefaultTools                *bool                 `json:"useDefaultTools,omitempty"`
}

// SimulationApplicationConfig is one simulation application launched inside a simulation job.
type SimulationApplicationConfig struct {
	Application                    string                `json:"application"`
	ApplicationVersion             string                `json:"applicationVersion,omitempty"`
	LaunchConfig                   LaunchConfig          `json:"launchConfig"`
	UploadConfigurations           []UploadConfiguration `json:"uploadConfigurations,omitempty"`
	WorldConfigs                   []WorldConfig         `json:"worldConfigs,omitempty"`
	UseDefaultUploadConfigurations *bool                 `json:"useDefaultUploadConfigurations,omitempty"`
	Tools                          []Tool                `json:"tools,omitempty"`
	UseDefaultTools                *bool                 `json:"useDefaultTools,omitempty"`
}

// Clone returns a deep copy. Concrete jobs are always built from a clone so
// scenario injection never writes through to the shared template.
func (p SimulationJobParams) Clone() SimulationJobParams {
	out := p
	if p.OutputLocation != nil {
		v := *p.OutputLocation
		out.OutputLocation = &v
	}
	if p.LoggingConfig != nil {
		v := LoggingConfig{RecordAllRosTopics: cloneBool(p.LoggingConfig.RecordAllRosTopics)}
		out.LoggingConfig = &v
	}
	out.UseDefaultApplications = cloneBool(p.UseDefaultApplications)
	if p.RobotApplications != nil {
		out.RobotApplications = make([]RobotApplicationConfig, len(p.RobotApplications))
		for i, app := range p.RobotApplications {
			out.RobotApplications[i] = app.Clone()
		}
	}
	if p.SimulationApplications != nil {
		out.SimulationApplications = make([]SimulationApplicationConfig, len(p.SimulationApplications))
		for i, app := range p.SimulationApplications {
			out.SimulationApplications[i] = app.Clone()
		}
	}
	if p.DataSources != nil {
		out.DataSources = make([]DataSourceConfig, len(p.DataSources))
		for i, ds := range p.DataSources {
			ds.S3Keys = cloneStrings(ds.S3Keys)
			out.DataSources[i] = ds
		}
	}
	out.Tags = CloneStringMap(p.Tags)
	if p.VPCConfig != nil {
		out.VPCConfig = &VPCConfig{
			Subnets:        cloneStrings(p.VPCConfig.Subnets),
			SecurityGroups: cloneStrings(p.VPCConfig.SecurityGroups),
			AssignPublicIP: cloneBool(p.VPCConfig.AssignPublicIP),
		}
	}
	if p.Compute != nil {
		out.Compute = &Compute{
			SimulationUnitLimit: cloneInt32(p.Compute.SimulationUnitLimit),
			ComputeType:         p.Compute.ComputeType,
			GPUUnitLimit:        cloneInt32(p.Compute.GPUUnitLimit),
		}
	}
	return out
}

func (a RobotApplicationConfig) Clone() RobotApplicationConfig {
	out := a
	out.LaunchConfig = a.LaunchConfig.Clone()
	out.UploadConfigurations = cloneUploads(a.UploadConfigurations)
	out.UseDefaultUploadConfigurations = cloneBool(a.UseDefaultUploadConfigurations)
	out.Tools = cloneTools(a.Tools)
	out.UseDefaultTools = cloneBool(a.UseDefaultTools)
	return out
}

func (a SimulationApplicationConfig) Clone() SimulationApplicationConfig {
	out := a
	out.LaunchConfig = a.LaunchConfig.Clone()
	out.UploadConfigurations = cloneUploads(a.UploadConfigurations)
	if a.WorldConfigs != nil {
		out.WorldConfigs = append([]WorldConfig(nil), a.WorldConfigs...)
	}
	out.UseDefaultUploadConfigurations = cloneBool(a.UseDefaultUploadConfigurations)
	out.Tools = cloneTools(a.Tools)
	out.UseDefaultTools = cloneBool(a.UseDefaultTools)
	return out
}

func (c LaunchConfig) Clone() LaunchConfig {
	out := c
	out.EnvironmentVariables = CloneStringMap(c.EnvironmentVariables)
	out.Command = cloneStrings(c.Command)
	if c.PortForwardingConfig != nil {
		out.PortForwardingConfig = &PortForwardingConfig{}
		if c.PortForwardingConfig.PortMappings != nil {
			out.PortForwardingConfig.PortMappings = append([]PortMapping(nil), c.PortForwardingConfig.PortMappings...)
		}
	}
	return out
}

// CloneStringMap copies a string map, preserving nil.
func CloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneUploads(in []UploadConfiguration) []UploadConfiguration {
	if in == nil {
		return nil
	}
	return append([]UploadConfiguration(nil), in...)
}

func cloneTools(in []Tool) []Tool {
	if in == nil {
		return nil
	}
	out := make([]Tool, len(in))
	for i, t := range in {
		t.StreamUI = cloneBool(t.StreamUI)
		t.StreamOutputToCloudWatch = cloneBool(t.StreamOutputToCloudWatch)
		out[i] = t
	}
	return out
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt32(v *int32) *int32 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
