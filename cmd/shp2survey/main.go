// shp2survey imports survey sites from a shapefile. Each polygon becomes
// a draft mission in the database, ready for path generation, or is
// emitted as GeoJSON for inspection.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"skysurvey/pkg/db"
	"skysurvey/pkg/model"
	"skysurvey/pkg/store"
)

func main() {
	inputPath := flag.String("input", "", "Path to input .shp file")
	dbPath := flag.String("db", "", "Path to survey database (missions are created as drafts)")
	outputPath := flag.String("output", "", "Path to output .geojson file (optional)")
	siteName := flag.String("site", "", "Site name for all imported missions (default: shapefile name attribute)")
	surveyType := flag.String("pattern", "crosshatch", "Survey pattern for imported missions")
	altitude := flag.Float64("altitude", 50, "Survey altitude in meters AGL")
	speed := flag.Float64("speed", 10, "Survey speed in m/s")
	overlap := flag.Float64("overlap", 70, "Image overlap percentage")
	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		log.Fatal("Input path is required")
	}
	if *dbPath == "" && *outputPath == "" {
		flag.Usage()
		log.Fatal("At least one of -db or -output is required")
	}

	opts := importOptions{
		site:       *siteName,
		surveyType: *surveyType,
		altitude:   *altitude,
		speed:      *speed,
		overlap:    *overlap,
	}
	if err := run(*inputPath, *dbPath, *outputPath, opts); err != nil {
		log.Fatal(err)
	}
}

type importOptions struct {
	site       string
	surveyType string
	altitude   float64
	speed      float64
	overlap    float64
}

func run(inputPath, dbPath, outputPath string, opts importOptions) error {
	shape, err := shp.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer shape.Close()

	fields := shape.Fields()
	fieldNames := make([]string, len(fields))
	for i, f := range fields {
		fieldNames[i] = f.String()
	}

	fc := geojson.NewFeatureCollection()
	var sites []site

	for shape.Next() {
		n, p := shape.Shape()

		poly, ok := p.(*shp.Polygon)
		if !ok {
			log.Printf("Skipping non-polygon shape: %T", p)
			continue
		}

		geometry := convertPolygon(poly)
		f := geojson.NewFeature(geometry)
		for i, name := range fieldNames {
			f.Properties[name] = shape.ReadAttribute(n, i)
		}
		fc.Append(f)

		sites = append(sites, site{
			name:     featureName(f, n),
			geometry: geometry,
		})
	}
	if err := shape.Err(); err != nil {
		return fmt.Errorf("error iterating shapes: %w", err)
	}

	if outputPath != "" {
		data, err := json.MarshalIndent(fc, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal GeoJSON: %w", err)
		}
		if err := os.WriteFile(outputPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Printf("Wrote %d features to %s\n", len(fc.Features), outputPath)
	}

	if dbPath != "" {
		created, err := importMissions(dbPath, sites, opts)
		if err != nil {
			return err
		}
		fmt.Printf("Created %d draft missions in %s\n", created, dbPath)
	}

	return nil
}

type site struct {
	name     string
	geometry orb.Polygon
}

func importMissions(dbPath string, sites []site, opts importOptions) (int, error) {
	conn, err := db.Init(dbPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open database: %w", err)
	}
	defer conn.Close()
	st := store.NewSQLiteStore(conn)

	ctx := context.Background()
	created := 0
	for _, s := range sites {
		area := model.Polygon{Polygon: s.geometry}
		area.NormalizeLongitudes()

		m := &model.Mission{
			MissionID:    model.NewMissionID(),
			Name:         s.name,
			SiteName:     opts.site,
			SurveyType:   opts.surveyType,
			CoverageArea: area,
			Altitude:     opts.altitude,
			Speed:        opts.speed,
			Overlap:      opts.overlap,
			Status:       model.MissionDraft,
			Phase:        model.PhaseIdle,
			CreatedAt:    time.Now().UTC(),
		}
		if err := st.SaveMission(ctx, m); err != nil {
			return created, fmt.Errorf("failed to save mission %q: %w", s.name, err)
		}
		created++
	}
	return created, nil
}

// featureName digs a human-readable name out of the shapefile attributes,
// falling back to a numbered site.
func featureName(f *geojson.Feature, index int) string {
	for key, val := range f.Properties {
		if !strings.EqualFold(strings.TrimSpace(key), "name") {
			continue
		}
		if s, ok := val.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return fmt.Sprintf("Site %d", index+1)
}

func convertPolygon(s *shp.Polygon) orb.Polygon {
	// All parts are treated as rings of a single polygon
	var poly orb.Polygon

	for i := 0; i < int(s.NumParts); i++ {
		start := s.Parts[i]
		end := s.NumPoints
		if i < int(s.NumParts)-1 {
			end = s.Parts[i+1]
		}

		var ring orb.Ring
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{s.Points[j].X, s.Points[j].Y})
		}
		poly = append(poly, ring)
	}
	return poly
}
