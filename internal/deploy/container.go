package deploy

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"forcecode/internal/apperrors"
	"forcecode/internal/artifact"
	"forcecode/internal/gateway"
)

const (
	kindContainer    = "MetadataContainer"
	kindAsyncRequest = "ContainerAsyncRequest"

	namespaceDelimiter = "__"
	// Container names are limited to 32 characters.
	containerPrefix = "fc-"
)

// MemberIdentity names the record a container deploy targets.
type MemberIdentity struct {
	Namespace string
	Name      string
}

// ResolveMemberIdentity splits a "ns__Name" file name. A configured namespace
// always wins over one taken from the file name.
func ResolveMemberIdentity(a artifact.Artifact, namespace string) MemberIdentity {
	id := MemberIdentity{Name: a.Name}
	if ns, name, ok := strings.Cut(a.FileName, namespaceDelimiter); ok {
		id.Namespace = ns
		id.Name = name
	}
	if namespace != "" {
		id.Namespace = namespace
	}
	return id
}

// containerResult identifies the records a container deploy created.
type containerResult struct {
	ContainerID string
	RequestID   string
	MemberID    string
	Requests    []AsyncRequest
	Polls       int
}

// deployContainer stages the artifact in a fresh container, requests a
// compile and polls it to a terminal state.
func deployContainer(ctx context.Context, gw gateway.Gateway, s Settings, a artifact.Artifact, onPoll func(int)) (containerResult, error) {
	var res containerResult

	saved, err := gw.Create(ctx, kindContainer, gateway.Record{"Name": newContainerName()})
	if err != nil {
		return res, err
	}
	if !saved.Success {
		return res, apperrors.RemoteRejection("container.create", gateway.FirstMessage(saved.Errors))
	}
	res.ContainerID = saved.ID

	res.MemberID, err = stageMember(ctx, gw, s, a, res.ContainerID)
	if err != nil {
		return res, err
	}

	saved, err = gw.Create(ctx, kindAsyncRequest, gateway.Record{
		"IsCheckOnly":         false,
		"IsRunTests":          false,
		"MetadataContainerId": res.ContainerID,
	})
	if err != nil {
		return res, err
	}
	if !saved.Success {
		return res, apperrors.RemoteRejection("compile.request", gateway.FirstMessage(saved.Errors))
	}
	res.RequestID = saved.ID

	poller := Poller{Gateway: gw, Interval: s.pollInterval(), OnAttempt: onPoll}
	res.Requests, res.Polls, err = poller.Poll(ctx, res.RequestID)
	return res, err
}

// stageMember adds the artifact to the container when the target record
// exists, or creates the record directly when it does not.
func stageMember(ctx context.Context, gw gateway.Gateway, s Settings, a artifact.Artifact, containerID string) (string, error) {
	id := ResolveMemberIdentity(a, s.NamespacePrefix)
	existing, err := gw.Find(ctx, string(a.Kind), map[string]string{
		"Name":            id.Name,
		"NamespacePrefix": id.Namespace,
	})
	if err != nil {
		return "", err
	}

	if len(existing) > 0 {
		record := existing[0]
		saved, err := gw.Create(ctx, a.Kind.MemberKind(), gateway.Record{
			"Body":                a.Body,
			"ContentEntityId":     record.ID(),
			"Metadata":            record["Metadata"],
			"MetadataContainerId": containerID,
		})
		if err != nil {
			return "", err
		}
		if !saved.Success {
			return "", apperrors.RemoteRejection("member.create", gateway.FirstMessage(saved.Errors))
		}
		return saved.ID, nil
	}

	saved, err := gw.Create(ctx, string(a.Kind), newRecordPayload(a))
	if err != nil {
		return "", err
	}
	if !saved.Success {
		return "", apperrors.RemoteRejection("record.create", gateway.FirstMessage(saved.Errors))
	}
	return saved.ID, nil
}

// newRecordPayload is the body of a first-time create for a kind.
func newRecordPayload(a artifact.Artifact) gateway.Record {
	switch a.Kind {
	case artifact.KindApexPage, artifact.KindApexComponent:
		return gateway.Record{
			"Markup":      a.Body,
			"Masterlabel": a.Name + "Label",
			"Name":        a.Name,
		}
	default:
		return gateway.Record{"Body": a.Body}
	}
}

func newContainerName() string {
	return containerPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
