package robomaker

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/robomaker"
	"github.com/aws/aws-sdk-go-v2/service/robomaker/types"
	"github.com/tiger/robomaker-sim-launcher/api/launcher"
)

// jobRequest maps params onto a batch entry. Batch entries carry no per-job
// idempotency token, so ClientRequestToken is dropped.
func jobRequest(p launcher.SimulationJobParams) types.SimulationJobRequest {
	return types.SimulationJobRequest{
		MaxJobDurationInSeconds: p.MaxJobDurationInSeconds,
		Compute:                 compute(p.Compute),
		DataSources:             dataSources(p.DataSources),
		FailureBehavior:         types.FailureBehavior(p.FailureBehavior),
		IamRole:                 optionalString(p.IAMRole),
		LoggingConfig:           loggingConfig(p.LoggingConfig),
		OutputLocation:          outputLocation(p.OutputLocation),
		RobotApplications:       robotApplications(p.RobotApplications),
		SimulationApplications:  simulationApplications(p.SimulationApplications),
		Tags:                    launcher.CloneStringMap(p.Tags),
		UseDefaultApplications:  cloneBool(p.UseDefaultApplications),
		VpcConfig:               vpcConfig(p.VPCConfig),
	}
}

func createJobInput(p launcher.SimulationJobParams) *robomaker.CreateSimulationJobInput {
	return &robomaker.CreateSimulationJobInput{
		ClientRequestToken:      optionalString(p.ClientRequestToken),
		MaxJobDurationInSeconds: p.MaxJobDurationInSeconds,
		IamRole:                 optionalString(p.IAMRole),
		Compute:                 compute(p.Compute),
		DataSources:             dataSources(p.DataSources),
		FailureBehavior:         types.FailureBehavior(p.FailureBehavior),
		LoggingConfig:           loggingConfig(p.LoggingConfig),
		OutputLocation:          outputLocation(p.OutputLocation),
		RobotApplications:       robotApplications(p.RobotApplications),
		SimulationApplications:  simulationApplications(p.SimulationApplications),
		Tags:                    launcher.CloneStringMap(p.Tags),
		VpcConfig:               vpcConfig(p.VPCConfig),
	}
}

func robotApplications(in []launcher.RobotApplicationConfig) []types.RobotApplicationConfig {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.RobotApplicationConfig, len(in))
	for i, app := range in {
		out[i] = types.RobotApplicationConfig{
			Application:                    optionalString(app.Application),
			ApplicationVersion:             optionalString(app.ApplicationVersion),
			LaunchConfig:                   launchConfig(app.LaunchConfig),
			Tools:                          tools(app.Tools),
			UploadConfigurations:           uploads(app.UploadConfigurations),
			UseDefaultTools:                cloneBool(app.UseDefaultTools),
			UseDefaultUploadConfigurations: cloneBool(app.UseDefaultUploadConfigurations),
		}
	}
	return out
}

func simulationApplications(in []launcher.SimulationApplicationConfig) []types.SimulationApplicationConfig {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.SimulationApplicationConfig, len(in))
	for i, app := range in {
		var worlds []types.WorldConfig
		for _, w := range app.WorldConfigs {
			worlds = append(worlds, types.WorldConfig{World: optionalString(w.World)})
		}
		out[i] = types.SimulationApplicationConfig{
			Application:                    optionalString(app.Application),
			ApplicationVersion:             optionalString(app.ApplicationVersion),
			LaunchConfig:                   launchConfig(app.LaunchConfig),
			Tools:                          tools(app.Tools),
			UploadConfigurations:           uploads(app.UploadConfigurations),
			UseDefaultTools:                cloneBool(app.UseDefaultTools),
			UseDefaultUploadConfigurations: cloneBool(app.UseDefaultUploadConfigurations),
			WorldConfigs:                   worlds,
		}
	}
	return out
}

func launchConfig(in launcher.LaunchConfig) *types.LaunchConfig {
	out := &types.LaunchConfig{
		Command:              append([]string(nil), in.Command...),
		EnvironmentVariables: launcher.CloneStringMap(in.EnvironmentVariables),
		LaunchFile:           optionalString(in.LaunchFile),
		PackageName:          optionalString(in.PackageName),
		StreamUI:             in.StreamUI,
	}
	if in.PortForwardingConfig != nil {
		mappings := make([]types.PortMapping, len(in.PortForwardingConfig.PortMappings))
		for i, m := range in.PortForwardingConfig.PortMappings {
			mappings[i] = types.PortMapping{
				ApplicationPort:  aws.Int32(m.ApplicationPort),
				JobPort:          aws.Int32(m.JobPort),
				EnableOnPublicIp: m.EnableOnPublicIP,
			}
		}
		out.PortForwardingConfig = &types.PortForwardingConfig{PortMappings: mappings}
	}
	return out
}

func tools(in []launcher.Tool) []types.Tool {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.Tool, len(in))
	for i, tool := range in {
		out[i] = types.Tool{
			Command:                  optionalString(tool.Command),
			Name:                     optionalString(tool.Name),
			ExitBehavior:             types.ExitBehavior(tool.ExitBehavior),
			StreamOutputToCloudWatch: cloneBool(tool.StreamOutputToCloudWatch),
			StreamUI:                 cloneBool(tool.StreamUI),
		}
	}
	return out
}

func uploads(in []launcher.UploadConfiguration) []types.UploadConfiguration {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.UploadConfiguration, len(in))
	for i, u := range in {
		out[i] = types.UploadConfiguration{
			Name:           optionalString(u.Name),
			Path:           optionalString(u.Path),
			UploadBehavior: types.UploadBehavior(u.UploadBehavior),
		}
	}
	return out
}

func dataSources(in []launcher.DataSourceConfig) []types.DataSourceConfig {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.DataSourceConfig, len(in))
	for i, ds := range in {
		out[i] = types.DataSourceConfig{
			Name:        optionalString(ds.Name),
			S3Bucket:    optionalString(ds.S3Bucket),
			S3Keys:      append([]string(nil), ds.S3Keys...),
			Destination: optionalString(ds.Destination),
			Type:        types.DataSourceType(ds.Type),
		}
	}
	return out
}

func outputLocation(in *launcher.OutputLocation) *types.OutputLocation {
	if in == nil {
		return nil
	}
	return &types.OutputLocation{S3Bucket: optionalString(in.S3Bucket), S3Prefix: optionalString(in.S3Prefix)}
}

func loggingConfig(in *launcher.LoggingConfig) *types.LoggingConfig {
	if in == nil {
		return nil
	}
	return &types.LoggingConfig{RecordAllRosTopics: cloneBool(in.RecordAllRosTopics)}
}

func vpcConfig(in *launcher.VPCConfig) *types.VPCConfig {
	if in == nil {
		return nil
	}
	return &types.VPCConfig{
		Subnets:        append([]string(nil), in.Subnets...),
		SecurityGroups: append([]string(nil), in.SecurityGroups...),
		AssignPublicIp: aws.ToBool(in.AssignPublicIP),
	}
}

func compute(in *launcher.Compute) *types.Compute {
	if in == nil {
		return nil
	}
	out := &types.Compute{ComputeType: types.ComputeType(in.ComputeType)}
	if in.SimulationUnitLimit != nil {
		out.SimulationUnitLimit = aws.Int32(*in.SimulationUnitLimit)
	}
	if in.GPUUnitLimit != nil {
		out.GpuUnitLimit = aws.Int32(*in.GPUUnitLimit)
	}
	return out
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return aws.String(v)
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	return aws.Bool(*v)
}
