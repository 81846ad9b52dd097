package handlers

import (
	"context"
	"encoding/json"

	"github.com/gdg-garage/observe-api/internal/apperr"
	"github.com/gdg-garage/observe-api/internal/osmobjects"
	"github.com/paulmach/orb/geojson"
)

type ObjectHandler struct {
	store        *osmobjects.Store
	defaultLimit int
}

func NewObjectHandler(store *osmobjects.Store, defaultLimit int) *ObjectHandler {
	return &ObjectHandler{store: store, defaultLimit: defaultLimit}
}

type GetObjectRequest struct {
	Type    string `path:"type" doc:"Object type, e.g. node or way"`
	Ref     string `path:"ref" doc:"Object reference within its type"`
	Version string `query:"version" doc:"Exact version, the highest stored version when empty"`
}

type ObjectResponse struct {
	Body map[string]interface{} `doc:"GeoJSON feature"`
}

func (h *ObjectHandler) HandleGet(ctx context.Context, input *GetObjectRequest) (*ObjectResponse, error) {
	id := input.Type + "/" + input.Ref
	obj, err := h.store.Get(ctx, id, input.Version)
	if err != nil {
		return nil, httpError(err)
	}

	breakdown, err := h.store.AnswerBreakdown(ctx, []string{obj.ID})
	if err != nil {
		return nil, httpError(err)
	}

	f := obj.Feature()
	questions := breakdown[obj.ID]
	if questions == nil {
		questions = []osmobjects.QuestionCounts{}
	}
	f.Properties["questions"] = questions

	doc, err := featureDoc(f)
	if err != nil {
		return nil, httpError(err)
	}
	return &ObjectResponse{Body: doc}, nil
}

type ListObjectsRequest struct {
	Quadkey      string `query:"quadkey" pattern:"^[0-3]*$" doc:"Quadkey prefix"`
	Observations string `query:"observations" enum:"true,false,no" doc:"Keep objects whose boolean answers are mostly true, mostly false, or absent"`
	Query        string `query:"q" doc:"Full-text filter over the attributes"`
	Page         int    `query:"page" minimum:"1" default:"1"`
	Limit        int    `query:"limit" minimum:"0" maximum:"100" doc:"Page size, the server default when 0"`
}

type ListObjectsResponse struct {
	Body struct {
		Count   int64                      `json:"count" doc:"Objects inside the quadkey prefix, independent of paging"`
		Page    int                        `json:"page"`
		Limit   int                        `json:"limit"`
		Objects *geojson.FeatureCollection `json:"objects"`
	}
}

func (h *ObjectHandler) HandleList(ctx context.Context, input *ListObjectsRequest) (*ListObjectsResponse, error) {
	limit := input.Limit
	if limit == 0 {
		limit = h.defaultLimit
	}
	page := input.Page
	if page < 1 {
		page = 1
	}

	objects, err := h.store.List(ctx, osmobjects.Filter{
		QuadkeyPrefix: input.Quadkey,
		Observations:  osmobjects.ObservationsState(input.Observations),
		Text:          input.Query,
	}, (page-1)*limit, limit)
	if err != nil {
		return nil, httpError(err)
	}

	count, err := h.store.Count(ctx, input.Quadkey)
	if err != nil {
		return nil, httpError(err)
	}

	res := &ListObjectsResponse{}
	res.Body.Count = count
	res.Body.Page = page
	res.Body.Limit = limit
	res.Body.Objects = featureCollection(objects)
	return res, nil
}

type SearchObjectsRequest struct {
	Query   string `query:"q" required:"true" minLength:"1"`
	Quadkey string `query:"quadkey" pattern:"^[0-3]*$"`
	Limit   int    `query:"limit" minimum:"0" maximum:"100"`
}

type SearchObjectsResponse struct {
	Body *geojson.FeatureCollection
}

func (h *ObjectHandler) HandleSearch(ctx context.Context, input *SearchObjectsRequest) (*SearchObjectsResponse, error) {
	limit := input.Limit
	if limit == 0 {
		limit = h.defaultLimit
	}

	objects, err := h.store.Search(ctx, input.Query, input.Quadkey, limit)
	if err != nil {
		return nil, httpError(err)
	}
	return &SearchObjectsResponse{Body: featureCollection(objects)}, nil
}

type ImportObjectsRequest struct {
	Body map[string]interface{} `doc:"GeoJSON FeatureCollection"`
}

type ImportObjectsResponse struct {
	Body struct {
		Inserted int `json:"inserted"`
	}
}

func (h *ObjectHandler) HandleImport(ctx context.Context, input *ImportObjectsRequest) (*ImportObjectsResponse, error) {
	b, err := json.Marshal(input.Body)
	if err != nil {
		return nil, httpError(apperr.Validation.Wrap(err))
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, httpError(apperr.Validation.New("invalid GeoJSON feature collection: %v", err))
	}

	inserted, err := h.store.ImportFeatureCollection(ctx, fc)
	if err != nil {
		return nil, httpError(err)
	}

	res := &ImportObjectsResponse{}
	res.Body.Inserted = inserted
	return res, nil
}

type StatsRequest struct {
	CampaignID uint `query:"campaignId" doc:"Restrict to one campaign, all observations when 0"`
}

type StatsResponse struct {
	Body *osmobjects.Stats
}

func (h *ObjectHandler) HandleStats(ctx context.Context, input *StatsRequest) (*StatsResponse, error) {
	var campaignID *uint
	if input.CampaignID != 0 {
		campaignID = &input.CampaignID
	}

	stats, err := h.store.GlobalStats(ctx, campaignID)
	if err != nil {
		return nil, httpError(err)
	}
	return &StatsResponse{Body: stats}, nil
}

// featureDoc encodes f through its GeoJSON marshaller so the response keeps
// GeoJSON geometry.
func featureDoc(f *geojson.Feature) (map[string]interface{}, error) {
	b, err := f.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func featureCollection(objects []osmobjects.Object) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, o := range objects {
		fc.Append(o.Feature())
	}
	return fc
}
