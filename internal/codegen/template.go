package codegen

// dslTemplate renders a Kubeflow Pipelines v1 Python DSL module. The
// rendered module is self-contained: component definitions are embedded as
// string literals and the pipeline configuration is applied inside the
// pipeline function, so the external compiler needs nothing beyond the
// file itself.
const dslTemplate = `"""Kubeflow Pipelines DSL for pipeline {{q .PipelineName}}."""

from kfp import components
from kfp import dsl
from kubernetes.client import V1EmptyDirVolumeSource
from kubernetes.client import V1EnvVar
from kubernetes.client import V1EnvVarSource
from kubernetes.client import V1LocalObjectReference
from kubernetes.client import V1PersistentVolumeClaimVolumeSource
from kubernetes.client import V1SecretKeySelector
from kubernetes.client import V1Toleration
from kubernetes.client import V1Volume
from kubernetes.client import V1VolumeMount
{{- if .UseAWSSecret}}
from kfp.aws import use_aws_secret
{{- end}}

{{range .Definitions}}
{{- .Var}} = {{q .Text}}

{{.FactoryVar}} = components.load_component_from_text({{.Var}})

{{end}}
@dsl.pipeline(name={{q .PipelineName}}, description={{q .PipelineDescription}})
def generated_pipeline():
{{- if .ImagePullSecrets}}
    conf = dsl.get_pipeline_conf()
    conf.set_image_pull_secrets([
{{- range .ImagePullSecrets}}
        V1LocalObjectReference(name={{q .}}),
{{- end}}
    ])
{{- end}}
{{- range $t := .Tasks}}

    {{$t.Var}} = {{$t.FactoryVar}}({{$t.ArgList}})
    {{$t.Var}}.set_display_name({{q $t.Name}})
{{- range $t.Envs}}
    {{$t.Var}}.container.add_env_variable(V1EnvVar(name={{q .Key}}, value={{q .Value}}))
{{- end}}
{{- range $t.SecretEnvs}}
    {{$t.Var}}.container.add_env_variable(
        V1EnvVar(
            name={{q .EnvVar}},
            value_from=V1EnvVarSource(
                secret_key_ref=V1SecretKeySelector(name={{q .SecretName}}, key={{q .SecretKey}})
            ),
        )
    )
{{- end}}
{{- if $t.ObjectStorageSecret}}
    {{$t.Var}}.apply(use_aws_secret({{q $t.ObjectStorageSecret}}))
{{- end}}
{{- if $t.SpecialOutputs}}
    {{$t.Var}}.output_artifact_paths.update(
        {
{{- range $t.SpecialOutputs}}
            {{q .Key}}: {{q .Value}},
{{- end}}
        }
    )
{{- end}}
{{- if $t.ImagePullPolicy}}
    {{$t.Var}}.container.set_image_pull_policy({{q $t.ImagePullPolicy}})
{{- end}}
{{- if $t.CPURequest}}
    {{$t.Var}}.container.set_cpu_request(cpu={{q $t.CPURequest}})
{{- end}}
{{- if $t.MemRequest}}
    {{$t.Var}}.container.set_memory_request(memory={{q $t.MemRequest}})
{{- end}}
{{- if $t.GPUVendor}}
    {{$t.Var}}.container.set_gpu_limit(gpu={{q $t.GPUSize}}, vendor={{q $t.GPUVendor}})
{{- end}}
{{- if $t.CRIO}}
    {{$t.Var}}.add_volume(
        V1Volume(
            name={{q $t.CRIO.VolumeName}},
            empty_dir=V1EmptyDirVolumeSource(medium="", size_limit={{q $t.CRIO.VolumeSize}}),
        )
    )
    {{$t.Var}}.container.add_volume_mount(
        V1VolumeMount(mount_path={{q $t.CRIO.MountPath}}, name={{q $t.CRIO.VolumeName}})
    )
{{- end}}
{{- if $t.SharedMemSize}}
    {{$t.Var}}.add_volume(
        V1Volume(
            name="shm",
            empty_dir=V1EmptyDirVolumeSource(medium="Memory", size_limit={{q $t.SharedMemSize}}),
        )
    )
    {{$t.Var}}.container.add_volume_mount(V1VolumeMount(mount_path="/dev/shm", name="shm"))
{{- end}}
{{- range $t.Volumes}}
    {{$t.Var}}.add_volume(
        V1Volume(
            name={{q .Name}},
            persistent_volume_claim=V1PersistentVolumeClaimVolumeSource(claim_name={{q .PVCName}}),
        )
    )
    {{$t.Var}}.container.add_volume_mount(
        V1VolumeMount(mount_path={{q .Path}}, name={{q .Name}}{{if .SubPath}}, sub_path={{q .SubPath}}{{end}}{{if .ReadOnly}}, read_only=True{{end}})
    )
{{- end}}
{{- range $t.Labels}}
    {{$t.Var}}.add_pod_label({{q .Key}}, {{q .Value}})
{{- end}}
{{- range $t.Annotations}}
    {{$t.Var}}.add_pod_annotation({{q .Key}}, {{q .Value}})
{{- end}}
{{- range $t.Tolerations}}
    {{$t.Var}}.add_toleration(
        V1Toleration(effect={{q .Effect}}, key={{q .Key}}, operator={{q .Operator}}, value={{q .Value}})
    )
{{- end}}
{{- if $t.DisableCachingSet}}
    {{$t.Var}}.execution_options.caching_strategy.max_cache_staleness = "P0D"
{{- end}}
{{- if $t.RunName}}
    {{$t.Var}}.add_pod_annotation("pipelines.kubeflow.org/run_name", {{q $t.RunName}})
{{- end}}
{{- range $t.After}}
    {{$t.Var}}.after({{.}})
{{- end}}
{{- end}}
`
