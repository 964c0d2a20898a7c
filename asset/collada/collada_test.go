package collada_test

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/kestrel3d/kestrel/asset/collada"
)

func TestTrianglesDecode(t *testing.T) {
	data := `
		<triangles material="Material-material" count="12">
		<input semantic="VERTEX" source="#Cube-mesh-vertices" offset="0"/>
		<input semantic="NORMAL" source="#Cube-mesh-normals" offset="1"/>
		<p>0 0 2 0 3 0 7 1 5 1 4 1 4 2 1 2 0 2 5 3 2 3 1 3 2 4 7 4 3 4 0 5 7 5 4 5 0 6 1 6 2 6 7 7 6 7 5 7 4 8 5 8 1 8 5 9 6 9 2 9 2 10 6 10 7 10 0 11 3 11 7 11</p>
		</triangles>
	`
	var triangles collada.Triangles
	if err := xml.Unmarshal([]byte(data), &triangles); err != nil {
		t.Fatal(err)
	}

	if triangles.Material != "Material-material" {
		t.Fatalf("incorrect material: %s", triangles.Material)
	}
	if triangles.Count != 12 {
		t.Fatalf("incorrect count: %d", triangles.Count)
	}
	if len(triangles.Inputs) != 2 {
		t.Fatalf("number of inputs incorrect: %d", len(triangles.Inputs))
	}
	if len(triangles.Index) != 12*6 {
		t.Fatalf("number of index elements incorrect: %d", len(triangles.Index))
	}
}

func TestFloatsDecode(t *testing.T) {
	data := `<float_array id="Cube-mesh-normals-array" count="36">0 0 -1 0 0 1 1 0 -2.38419e-7 0 -1 -4.76837e-7 -1 2.38419e-7 -1.49012e-7 2.68221e-7 1 2.38419e-7 0 0 -1 0 0 1 1 -5.96046e-7 3.27825e-7 -4.76837e-7 -1 0 -1 2.38419e-7 -1.19209e-7 2.08616e-7 1 0</float_array>`

	var floats collada.Floats
	if err := xml.Unmarshal([]byte(data), &floats); err != nil {
		t.Fatal(err)
	}

	if len(floats.Data) != 36 {
		t.Fatalf("bad number of floats, got: %d", len(floats.Data))
	}
	if floats.ID != "Cube-mesh-normals-array" {
		t.Fatalf("bad id, got: %s", floats.ID)
	}
}

const testDocument = `<?xml version="1.0" encoding="utf-8"?>
<COLLADA>
  <library_geometries>
    <geometry id="Plane-mesh" name="Plane">
      <mesh>
        <source id="Plane-mesh-positions">
          <float_array id="Plane-mesh-positions-array" count="12">-1 -1 0 1 -1 0 1 1 0 -1 1 0</float_array>
        </source>
        <source id="Plane-mesh-map-0">
          <float_array id="Plane-mesh-map-0-array" count="8">0 0 1 0 1 1 0 1</float_array>
        </source>
        <vertices id="Plane-mesh-vertices">
          <input semantic="POSITION" source="#Plane-mesh-positions"/>
        </vertices>
        <triangles count="2">
          <input semantic="VERTEX" source="#Plane-mesh-vertices" offset="0"/>
          <input semantic="TEXCOORD" source="#Plane-mesh-map-0" offset="1"/>
          <p>0 0 1 1 2 2 2 2 3 3 0 0</p>
        </triangles>
      </mesh>
    </geometry>
  </library_geometries>
</COLLADA>`

func TestImportGeometry(t *testing.T) {
	cfg, err := collada.ImportGeometry([]byte(testDocument))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Name != "Plane" {
		t.Errorf("name: got %q, want Plane", cfg.Name)
	}
	if cfg.VertexCount != 6 {
		t.Errorf("vertex count: got %d, want 6", cfg.VertexCount)
	}
	if cfg.IndexCount != 0 {
		t.Errorf("import should be unindexed, got %d indices", cfg.IndexCount)
	}
	if len(cfg.Vertices) != int(cfg.VertexCount*cfg.VertexSize) {
		t.Errorf("vertex buffer length %d does not match count %d size %d",
			len(cfg.Vertices), cfg.VertexCount, cfg.VertexSize)
	}
}

func TestImportGeometryNegativeIndex(t *testing.T) {
	document := strings.Replace(testDocument, "<p>0 0 1 1 2 2 2 2 3 3 0 0</p>", "<p>-1 0 1 1 2 2 2 2 3 3 0 0</p>", 1)
	if _, err := collada.ImportGeometry([]byte(document)); err == nil {
		t.Error("negative position index imported without error")
	}

	document = strings.Replace(testDocument, "<p>0 0 1 1 2 2 2 2 3 3 0 0</p>", "<p>0 -2 1 1 2 2 2 2 3 3 0 0</p>", 1)
	if _, err := collada.ImportGeometry([]byte(document)); err == nil {
		t.Error("negative texcoord index imported without error")
	}
}

func TestImportGeometryEmptyDocument(t *testing.T) {
	if _, err := collada.ImportGeometry([]byte(`<COLLADA></COLLADA>`)); err == nil {
		t.Error("empty document imported without error")
	}
}
