package deploy

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"forcecode/internal/apperrors"
	"forcecode/internal/artifact"
	"forcecode/internal/gateway"
)

// DefType is the role of a definition inside a Lightning bundle.
type DefType string

const (
	DefApplication   DefType = "APPLICATION"
	DefComponent     DefType = "COMPONENT"
	DefDocumentation DefType = "DOCUMENTATION"
	DefStyle         DefType = "STYLE"
	DefEvent         DefType = "EVENT"
	DefDesign        DefType = "DESIGN"
	DefSVG           DefType = "SVG"
	DefController    DefType = "CONTROLLER"
	DefHelper        DefType = "HELPER"
	DefRenderer      DefType = "RENDERER"
)

// Format is the source format of a definition.
type Format string

const (
	FormatJS  Format = "js"
	FormatCSS Format = "css"
	FormatXML Format = "xml"
)

var defTypesByExtension = map[string]DefType{
	"app":     DefApplication,
	"cmp":     DefComponent,
	"auradoc": DefDocumentation,
	"css":     DefStyle,
	"evt":     DefEvent,
	"design":  DefDesign,
	"svg":     DefSVG,
}

var scriptRoles = map[string]DefType{
	"controller": DefController,
	"helper":     DefHelper,
	"renderer":   DefRenderer,
}

const (
	kindBundle     = "AuraDefinitionBundle"
	kindDefinition = "AuraDefinition"
)

// ResolveDefType maps an artifact's extension to its definition type. Script
// files are told apart by the role suffix that follows the bundle name.
func ResolveDefType(a artifact.Artifact) (DefType, error) {
	if a.Extension == "js" {
		suffix := strings.ToLower(strings.Replace(a.FileName, a.Name, "", 1))
		if def, ok := scriptRoles[suffix]; ok {
			return def, nil
		}
		return "", apperrors.Classification(fmt.Sprintf("Unknown script role: %s .", a.FileName))
	}
	if def, ok := defTypesByExtension[a.Extension]; ok {
		return def, nil
	}
	return "", apperrors.Classification(fmt.Sprintf("Unknown extension: %s .", a.Extension))
}

// ResolveFormat maps an extension to a definition format.
func ResolveFormat(ext string) Format {
	switch ext {
	case "js":
		return FormatJS
	case "css":
		return FormatCSS
	default:
		return FormatXML
	}
}

// bundleResult identifies the records a bundle deploy touched.
type bundleResult struct {
	BundleID     string
	DefinitionID string
	DefType      DefType
	Created      bool
}

// deployBundle ensures the bundle exists and creates or updates the one
// definition matching the artifact's type.
func deployBundle(ctx context.Context, gw gateway.Gateway, s Settings, a artifact.Artifact) (bundleResult, error) {
	defType, err := ResolveDefType(a)
	if err != nil {
		return bundleResult{}, err
	}
	res := bundleResult{DefType: defType}

	var bundles, definitions []gateway.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bundles, err = gw.Find(gctx, kindBundle, map[string]string{
			"DeveloperName":   a.Name,
			"NamespacePrefix": s.NamespacePrefix,
		})
		return err
	})
	g.Go(func() error {
		var err error
		definitions, err = gw.Find(gctx, kindDefinition, map[string]string{
			"AuraDefinitionBundle.DeveloperName":   a.Name,
			"AuraDefinitionBundle.NamespacePrefix": s.NamespacePrefix,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return res, err
	}

	if len(bundles) > 0 {
		res.BundleID = bundles[0].ID()
	} else {
		saved, err := gw.Create(ctx, kindBundle, gateway.Record{
			"DeveloperName": a.Name,
			"MasterLabel":   a.Name,
			"ApiVersion":    s.apiVersion(),
			"Description":   strings.Replace(a.Name, "_", " ", 1),
		})
		if err != nil {
			return res, err
		}
		if !saved.Success {
			return res, apperrors.RemoteRejection("bundle.create", gateway.FirstMessage(saved.Errors))
		}
		res.BundleID = saved.ID
	}

	for _, def := range definitions {
		if def.String("DefType") != string(defType) {
			continue
		}
		res.DefinitionID = def.ID()
		if id := def.String("AuraDefinitionBundleId"); id != "" {
			res.BundleID = id
		}
		saved, err := gw.Update(ctx, kindDefinition, gateway.Record{"Id": res.DefinitionID, "Source": a.Body})
		if err != nil {
			return res, err
		}
		if !saved.Success {
			return res, apperrors.RemoteRejection("definition.update", gateway.FirstMessage(saved.Errors))
		}
		return res, nil
	}

	saved, err := gw.Create(ctx, kindDefinition, gateway.Record{
		"AuraDefinitionBundleId": res.BundleID,
		"DefType":                string(defType),
		"Format":                 string(ResolveFormat(a.Extension)),
		"Source":                 a.Body,
	})
	if err != nil {
		return res, err
	}
	if !saved.Success {
		return res, apperrors.RemoteRejection("definition.create", gateway.FirstMessage(saved.Errors))
	}
	res.DefinitionID = saved.ID
	res.Created = true
	return res, nil
}
