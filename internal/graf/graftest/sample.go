// Package graftest writes small LAF resources for tests.
package graftest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Source is the name of the sample source. Tasks treat it as the tiny
// source and print book names.
const Source = "tiny"

// Annox is the name of the sample annotation package
const Annox = "px"

// Primary is the primary text of the sample source
const Primary = "alpha beta gamma׃ delta epsilon׃"

// Node indices in the compiled sample, in document order
const (
	W1 int32 = iota
	W2
	W3
	W4
	W5
	V1
	C1
	V2
	P1
	B1
)

// NodeCount is the number of nodes in the sample source
const NodeCount = 10

const header = `<?xml version="1.0" encoding="UTF-8"?>
<documentHeader xmlns="http://www.xces.org/ns/GrAF/1.0/" docId="tiny">
  <primaryData loc="tiny.txt" f.id="f.primary"/>
  <annotations>
    <annotation loc="tiny_words.xml" f.id="f.words"/>
    <annotation loc="tiny_objects.xml" f.id="f.objects"/>
  </annotations>
</documentHeader>
`

const words = `<?xml version="1.0" encoding="UTF-8"?>
<graph xmlns="http://www.xces.org/ns/GrAF/1.0/">
  <region xml:id="r1" anchors="0 5"/>
  <region xml:id="r2" anchors="6 10"/>
  <region xml:id="r3" anchors="11 16"/>
  <region xml:id="r4" anchors="18 23"/>
  <region xml:id="r5" anchors="24 31"/>
  <node xml:id="w1"><link targets="r1"/></node>
  <node xml:id="w2"><link targets="r2"/></node>
  <node xml:id="w3"><link targets="r3"/></node>
  <node xml:id="w4"><link targets="r4"/></node>
  <node xml:id="w5"><link targets="r5"/></node>
  <a label="word" ref="w1" as="ft"><fs><f name="text" value="alpha"/><f name="suffix" value=" "/></fs></a>
  <a label="word" ref="w2" as="ft"><fs><f name="text" value="beta"/><f name="suffix" value=" "/></fs></a>
  <a label="word" ref="w3" as="ft"><fs><f name="text" value="gamma"/><f name="suffix" value="׃ "/></fs></a>
  <a label="word" ref="w4" as="ft"><fs><f name="text" value="delta"/><f name="suffix" value=" "/></fs></a>
  <a label="word" ref="w5" as="ft"><fs><f name="text" value="epsilon"/><f name="suffix" value="׃"/></fs></a>
  <a label="oid" ref="w1" as="db"><fs><f name="otype" value="word"/></fs></a>
  <a label="oid" ref="w2" as="db"><fs><f name="otype" value="word"/></fs></a>
  <a label="oid" ref="w3" as="db"><fs><f name="otype" value="word"/></fs></a>
  <a label="oid" ref="w4" as="db"><fs><f name="otype" value="word"/></fs></a>
  <a label="oid" ref="w5" as="db"><fs><f name="otype" value="word"/></fs></a>
</graph>
`

const objects = `<?xml version="1.0" encoding="UTF-8"?>
<graph xmlns="http://www.xces.org/ns/GrAF/1.0/">
  <region xml:id="r6" anchors="0 17"/>
  <region xml:id="r7" anchors="18 32"/>
  <node xml:id="v1"><link targets="r6"/></node>
  <node xml:id="c1"><link targets="r7"/></node>
  <node xml:id="v2"><link targets="r7"/></node>
  <node xml:id="p1"><link targets="r1 r3"/></node>
  <node xml:id="b1"/>
  <edge xml:id="e1" from="b1" to="v1"/>
  <edge xml:id="e2" from="b1" to="v2"/>
  <edge xml:id="e3" from="p1" to="w1"/>
  <edge xml:id="e4" from="w2" to="w3"/>
  <a label="oid" ref="v1" as="db"><fs><f name="otype" value="verse"/></fs></a>
  <a label="oid" ref="c1" as="db"><fs><f name="otype" value="clause"/></fs></a>
  <a label="oid" ref="v2" as="db"><fs><f name="otype" value="verse"/></fs></a>
  <a label="oid" ref="p1" as="db"><fs><f name="otype" value="phrase"/></fs></a>
  <a label="oid" ref="b1" as="db"><fs><f name="otype" value="book"/></fs></a>
  <a label="book" ref="b1" as="sft"><fs><f name="book">Genesis</f></fs></a>
  <a label="verse" ref="v1" as="sft"><fs><f name="number" value="1"/></fs></a>
  <a label="verse" ref="v2" as="sft"><fs><f name="number" value="2"/></fs></a>
  <a label="parents" ref="e1" as="ft"><fs/></a>
  <a label="parents" ref="e2" as="ft"><fs/></a>
  <a label="rel" ref="e3" as="ft"><fs><f name="role" value="subj"/></fs></a>
</graph>
`

const annoxHeader = `<?xml version="1.0" encoding="UTF-8"?>
<documentHeader xmlns="http://www.xces.org/ns/GrAF/1.0/" docId="px">
  <annotations>
    <annotation loc="px_notes.xml" f.id="f.notes"/>
  </annotations>
</documentHeader>
`

const annoxNotes = `<?xml version="1.0" encoding="UTF-8"?>
<graph xmlns="http://www.xces.org/ns/GrAF/1.0/">
  <a label="word" ref="w1" as="ft"><fs><f name="text" value="ALPHA"/></fs></a>
  <a label="note" ref="w2" as="px"><fs><f name="comment">second word</f></fs></a>
  <a label="rel" ref="e4" as="px"><fs><f name="kind" value="next"/></fs></a>
</graph>
`

// WriteSource writes the sample source under lafDir and returns its header path
func WriteSource(t testing.TB, lafDir string) string {
	t.Helper()
	dir := filepath.Join(lafDir, Source)
	write(t, dir, "tiny.hdr", header)
	write(t, dir, "tiny.txt", Primary)
	write(t, dir, "tiny_words.xml", words)
	write(t, dir, "tiny_objects.xml", objects)
	return filepath.Join(dir, "tiny.hdr")
}

// WriteAnnox writes the sample annotation package under lafDir and returns its header path
func WriteAnnox(t testing.TB, lafDir string) string {
	t.Helper()
	dir := filepath.Join(lafDir, "annotations", Annox)
	write(t, dir, "px.hdr", annoxHeader)
	write(t, dir, "px_notes.xml", annoxNotes)
	return filepath.Join(dir, "px.hdr")
}

// WriteFile writes an arbitrary file, for malformed inputs
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	write(t, dir, name, content)
	return filepath.Join(dir, name)
}

func write(t testing.TB, dir, name, content string) {
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}
