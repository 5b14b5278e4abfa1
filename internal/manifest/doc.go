// Package manifest loads declarative host declarations from YAML or CUE
// files and turns them into registered hosts.
//
// Both formats share one schema:
//
//	owner: app            # default owner for every host
//	scope: [src]          # optional allowed output prefixes
//	hosts:
//	  - path: src/app.ts
//	    slots:
//	      template_file: templates/app.ts.tpl
//	      detect: true
//	      slots:
//	        imports: {preset: imports}
//	      add:
//	        - {slot: imports, kind: import, key: react, data: {from: react, default: React}}
//
// Relative file references (content_file, template_file, copy sources and
// observe entries) resolve against the manifest's directory. Files read at
// render time are observed automatically.
package manifest
